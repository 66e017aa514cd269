package gnomebot

import (
	"context"
	"errors"
	"fmt"
	"github.com/bwmarrin/discordgo"
	"strings"
	"sync"
	"text/tabwriter"
)

var (
	ErrDuplicateCommand   = errors.New("duplicate command name")
	ErrMissingCommandName = errors.New("missing command name")
	ErrMissingHandler     = errors.New("missing command handler")
	ErrUnknownRole        = errors.New("unknown role")
)

// Role is one of the three roles prefix commands are gated on
type Role int

const (
	RoleMember Role = iota
	RoleContributor
	RoleMaintainer
)

// Roles lists every role in prefix evaluation order
var Roles = []Role{RoleMember, RoleContributor, RoleMaintainer}

func (r Role) String() string {
	switch r {
	case RoleMember:
		return "Member"
	case RoleContributor:
		return "Contributor"
	case RoleMaintainer:
		return "Maintainer"
	default:
		return fmt.Sprintf("Role(%d)", int(r))
	}
}

// Prefix is the literal leading token for the role's commands
func (r Role) Prefix() string {
	switch r {
	case RoleMember:
		return "sudo"
	case RoleContributor:
		return "$sudo"
	case RoleMaintainer:
		return "$packman"
	default:
		return ""
	}
}

func (r Role) valid() bool {
	return r >= RoleMember && r <= RoleMaintainer
}

// CommandKind distinguishes slash commands from prefix commands
type CommandKind int

const (
	CommandKindSlash CommandKind = iota
	CommandKindPrefix
)

func (k CommandKind) String() string {
	if k == CommandKindSlash {
		return "Slash"
	}
	return "Prefix"
}

// Command is either a [*SlashCommand] or a [*PrefixCommand]
type Command interface {
	CommandName() string
	Kind() CommandKind
	validate() error
}

// SlashCommand is registered with discord and invoked through the
// native command UI.
type SlashCommand struct {
	Schema  *discordgo.ApplicationCommand
	Handler func(ctx context.Context, r *Responder) error
}

func (c *SlashCommand) CommandName() string {
	if c.Schema == nil {
		return ""
	}
	return c.Schema.Name
}

func (*SlashCommand) Kind() CommandKind { return CommandKindSlash }

func (c *SlashCommand) validate() error {
	if c.CommandName() == "" {
		return ErrMissingCommandName
	}
	if c.Handler == nil {
		return ErrMissingHandler
	}
	return nil
}

// PrefixCommand is invoked by a chat message starting with its role's
// prefix, followed by its name.
type PrefixCommand struct {
	Role        Role
	Name        string
	Description string
	Syntax      string
	Usage       string
	Emoji       string
	Handler     func(ctx context.Context, inv *PrefixInvocation) error
}

func (c *PrefixCommand) CommandName() string {
	return strings.ToLower(c.Name)
}

func (*PrefixCommand) Kind() CommandKind { return CommandKindPrefix }

func (c *PrefixCommand) validate() error {
	if c.Name == "" {
		return ErrMissingCommandName
	}
	if !c.Role.valid() {
		return fmt.Errorf("%w: %d", ErrUnknownRole, int(c.Role))
	}
	if c.Handler == nil {
		return ErrMissingHandler
	}
	return nil
}

// CommandTable maps command names to commands, remembering insertion order
type CommandTable[C Command] struct {
	names  []string
	byName map[string]C
}

func newCommandTable[C Command]() *CommandTable[C] {
	return &CommandTable[C]{byName: map[string]C{}}
}

func (t *CommandTable[C]) add(c C) error {
	name := c.CommandName()
	if _, exists := t.byName[name]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateCommand, name)
	}
	t.byName[name] = c
	t.names = append(t.names, name)
	return nil
}

// Get looks up a command by its (lowercase) name
func (t *CommandTable[C]) Get(name string) (C, bool) {
	c, ok := t.byName[name]
	return c, ok
}

func (t *CommandTable[C]) Len() int {
	return len(t.names)
}

// Commands returns the table's commands in the order they were added
func (t *CommandTable[C]) Commands() []C {
	rv := make([]C, 0, len(t.names))
	for _, name := range t.names {
		rv = append(rv, t.byName[name])
	}
	return rv
}

// Registry holds the slash command table and one prefix command table
// per role. It's built once, at startup.
type Registry struct {
	Slash  *CommandTable[*SlashCommand]
	prefix map[Role]*CommandTable[*PrefixCommand]
	Report *LoadReport
}

func newRegistry() *Registry {
	r := &Registry{
		Slash:  newCommandTable[*SlashCommand](),
		prefix: map[Role]*CommandTable[*PrefixCommand]{},
		Report: &LoadReport{},
	}
	for _, role := range Roles {
		r.prefix[role] = newCommandTable[*PrefixCommand]()
	}
	return r
}

// BuildTables sorts the given commands into their tables. Commands that
// fail validation or reuse an existing name are skipped and recorded in
// the load report, and don't prevent the rest from loading.
func BuildTables(commands []Command, roles RolesConfig) *Registry {
	r := newRegistry()
	for _, c := range commands {
		_ = r.Register(c, roles)
	}
	return r
}

// Register adds a single command to the matching table, recording the
// outcome in the load report.
func (r *Registry) Register(c Command, roles RolesConfig) error {
	row := LoadReportRow{Name: c.CommandName(), Type: c.Kind().String(), Role: "N/A"}

	err := c.validate()
	if err == nil {
		switch cmd := c.(type) {
		case *SlashCommand:
			row.Role = "Everyone"
			row.Description = orDefault(cmd.Schema.Description, "No description")
			err = r.Slash.add(cmd)
		case *PrefixCommand:
			row.Role = cmd.Role.String()
			row.Description = orDefault(cmd.Description, "No description")
			err = r.prefix[cmd.Role].add(cmd)
		}
	}

	switch {
	case errors.Is(err, ErrDuplicateCommand):
		row.Status = "✗ duplicate"
		row.Description = "Load Failed: " + err.Error()
	case err != nil:
		row.Name = orDefault(row.Name, "(unnamed)")
		row.Status = "✗"
		row.Description = "Load Failed: " + err.Error()
	default:
		row.Status = "✓"
		if p, ok := c.(*PrefixCommand); ok && roles.RoleID(p.Role) == "" {
			row.Status = "✗ (No Role ID)"
		}
	}
	r.Report.Add(row)
	return err
}

// Prefix returns the prefix command table for the given role
func (r *Registry) Prefix(role Role) *CommandTable[*PrefixCommand] {
	return r.prefix[role]
}

// SlashSchemas returns the application command schemas to register
func (r *Registry) SlashSchemas() []*discordgo.ApplicationCommand {
	cmds := r.Slash.Commands()
	schemas := make([]*discordgo.ApplicationCommand, 0, len(cmds))
	for _, c := range cmds {
		schemas = append(schemas, c.Schema)
	}
	return schemas
}

// CommandCounts summarizes the table sizes as "n slash, n member, ..."
func (r *Registry) CommandCounts() string {
	return fmt.Sprintf(
		"%d slash, %d member, %d contributor, %d maintainer commands",
		r.Slash.Len(),
		r.prefix[RoleMember].Len(),
		r.prefix[RoleContributor].Len(),
		r.prefix[RoleMaintainer].Len(),
	)
}

// RoleID returns the configured role ID for the given role
func (c RolesConfig) RoleID(role Role) string {
	switch role {
	case RoleMember:
		return c.Member
	case RoleContributor:
		return c.Contributor
	case RoleMaintainer:
		return c.Maintainer
	default:
		return ""
	}
}

// LoadReportRow is one line of the startup status table
type LoadReportRow struct {
	Name        string
	Type        string
	Role        string
	Description string
	Status      string
}

// LoadReport is a human-readable record of which commands loaded, where
// slash commands were registered, and who the bot is logged in as.
type LoadReport struct {
	mu   sync.Mutex
	rows []LoadReportRow
}

func (r *LoadReport) Add(row LoadReportRow) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows = append(r.rows, row)
}

func (r *LoadReport) Rows() []LoadReportRow {
	r.mu.Lock()
	defer r.mu.Unlock()
	rows := make([]LoadReportRow, len(r.rows))
	copy(rows, r.rows)
	return rows
}

func (r *LoadReport) String() string {
	var sb strings.Builder
	w := tabwriter.NewWriter(&sb, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "Title / Name\tType\tUser\tDescription\tStatus")
	for _, row := range r.Rows() {
		_, _ = fmt.Fprintf(
			w,
			"%s\t%s\t%s\t%s\t%s\n",
			row.Name,
			row.Type,
			row.Role,
			truncate(row.Description, 60),
			row.Status,
		)
	}
	_ = w.Flush()
	return sb.String()
}
