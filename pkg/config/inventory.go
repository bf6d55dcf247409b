package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/load"
	cueyaml "cuelang.org/go/encoding/yaml"
	"github.com/go-playground/validator/v10"

	"github.com/gantry-io/gantry/pkg/guest"
	"github.com/gantry-io/gantry/pkg/guests"
	"github.com/gantry-io/gantry/pkg/machine"
)

// machineEntry is the CUE shape of one inventory machine. Durations
// are Go duration strings so inventories stay readable.
type machineEntry struct {
	Address         string            `json:"address" validate:"required"`
	Port            int               `json:"port" validate:"gte=0,lte=65535"`
	User            string            `json:"user" validate:"required"`
	KeyPath         string            `json:"key_path"`
	Password        string            `json:"password"`
	SudoPassword    string            `json:"sudo_password"`
	Guest           string            `json:"guest"`
	Labels          map[string]string `json:"labels"`
	ConnectTimeout  string            `json:"connect_timeout"`
	CommandTimeout  string            `json:"command_timeout"`
	InsecureHostKey bool              `json:"insecure_host_key"`
}

// guestEntry is the CUE shape of one script guest.
type guestEntry struct {
	Parent  string `json:"parent"`
	Script  string `json:"script" validate:"required"`
	Timeout string `json:"timeout"`
}

// InventoryParser parses and validates CUE inventories.
type InventoryParser struct {
	ctx       *cue.Context
	validator *validator.Validate
}

// NewInventoryParser creates an inventory parser.
func NewInventoryParser() *InventoryParser {
	return &InventoryParser{
		ctx:       cuecontext.New(),
		validator: validator.New(),
	}
}

// Parse loads an inventory from CUE sources. Each source is a file or
// a directory holding a CUE package. Multiple sources unify, so shared
// defaults can live in their own file.
func (p *InventoryParser) Parse(sources []string) (*Inventory, error) {
	if len(sources) == 0 {
		return nil, fmt.Errorf("no inventory sources provided")
	}

	var unified cue.Value
	var files []string

	for _, source := range sources {
		info, err := os.Stat(source)
		if err != nil {
			return nil, fmt.Errorf("inventory source %s: %w", source, err)
		}

		var val cue.Value
		if info.IsDir() {
			val, err = p.loadDirectory(source)
		} else {
			val, err = p.loadFile(source)
		}
		if err != nil {
			return nil, err
		}

		if unified.Exists() {
			unified = unified.Unify(val)
		} else {
			unified = val
		}
		files = append(files, source)
	}

	if err := unified.Err(); err != nil {
		return nil, convertCUEError(err)
	}

	return p.extract(unified, files)
}

// ParseInline parses inline CUE content, mostly for tests.
func (p *InventoryParser) ParseInline(content string) (*Inventory, error) {
	val := p.ctx.CompileString(content, cue.Filename("inline"))
	if err := val.Err(); err != nil {
		return nil, convertCUEError(err)
	}
	return p.extract(val, []string{"inline"})
}

func (p *InventoryParser) loadDirectory(dir string) (cue.Value, error) {
	insts := load.Instances([]string{dir}, nil)
	if len(insts) == 0 {
		return cue.Value{}, fmt.Errorf("no CUE files in %s", dir)
	}
	if insts[0].Err != nil {
		return cue.Value{}, convertCUEError(insts[0].Err)
	}

	val := p.ctx.BuildInstance(insts[0])
	if err := val.Err(); err != nil {
		return cue.Value{}, convertCUEError(err)
	}
	return val, nil
}

// loadFile compiles one inventory file. YAML files are extracted into
// CUE first so they unify with CUE sources like any other.
func (p *InventoryParser) loadFile(path string) (cue.Value, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return cue.Value{}, fmt.Errorf("reading %s: %w", path, err)
	}

	var val cue.Value
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		file, err := cueyaml.Extract(path, content)
		if err != nil {
			return cue.Value{}, convertCUEError(err)
		}
		val = p.ctx.BuildFile(file)
	default:
		val = p.ctx.CompileString(string(content), cue.Filename(path))
	}

	if err := val.Err(); err != nil {
		return cue.Value{}, convertCUEError(err)
	}
	return val, nil
}

func (p *InventoryParser) extract(val cue.Value, files []string) (*Inventory, error) {
	inv := &Inventory{SourceFiles: files}

	machinesVal := val.LookupPath(cue.ParsePath("machines"))
	if machinesVal.Exists() {
		iter, err := machinesVal.Fields(cue.Concrete(true))
		if err != nil {
			return nil, convertCUEError(err)
		}
		for iter.Next() {
			name := iter.Selector().Unquoted()
			cfg, err := p.extractMachine(name, iter.Value())
			if err != nil {
				return nil, fmt.Errorf("machine %s: %w", name, err)
			}
			inv.Machines = append(inv.Machines, cfg)
		}
	}

	guestsVal := val.LookupPath(cue.ParsePath("guests"))
	if guestsVal.Exists() {
		iter, err := guestsVal.Fields(cue.Concrete(true))
		if err != nil {
			return nil, convertCUEError(err)
		}
		for iter.Next() {
			name := iter.Selector().Unquoted()
			sg, err := p.extractScriptGuest(name, iter.Value())
			if err != nil {
				return nil, fmt.Errorf("guest %s: %w", name, err)
			}
			inv.ScriptGuests = append(inv.ScriptGuests, sg)
		}
	}

	sort.Slice(inv.Machines, func(i, j int) bool {
		return inv.Machines[i].Name < inv.Machines[j].Name
	})
	return inv, nil
}

func (p *InventoryParser) extractMachine(name string, val cue.Value) (machine.Config, error) {
	var entry machineEntry
	if err := val.Decode(&entry); err != nil {
		return machine.Config{}, convertCUEError(err)
	}
	if err := p.validator.Struct(entry); err != nil {
		return machine.Config{}, err
	}

	connectTimeout, err := parseDuration(entry.ConnectTimeout, "connect_timeout")
	if err != nil {
		return machine.Config{}, err
	}
	commandTimeout, err := parseDuration(entry.CommandTimeout, "command_timeout")
	if err != nil {
		return machine.Config{}, err
	}

	return machine.Config{
		Name:            name,
		Address:         entry.Address,
		Port:            entry.Port,
		User:            entry.User,
		KeyPath:         entry.KeyPath,
		Password:        entry.Password,
		SudoPassword:    entry.SudoPassword,
		Guest:           entry.Guest,
		Labels:          entry.Labels,
		ConnectTimeout:  connectTimeout,
		CommandTimeout:  commandTimeout,
		InsecureHostKey: entry.InsecureHostKey,
	}, nil
}

func (p *InventoryParser) extractScriptGuest(name string, val cue.Value) (guests.ScriptGuest, error) {
	var entry guestEntry
	if err := val.Decode(&entry); err != nil {
		return guests.ScriptGuest{}, convertCUEError(err)
	}
	if err := p.validator.Struct(entry); err != nil {
		return guests.ScriptGuest{}, err
	}

	timeout, err := parseDuration(entry.Timeout, "timeout")
	if err != nil {
		return guests.ScriptGuest{}, err
	}

	return guests.ScriptGuest{
		ID:      guest.ID(name),
		Parent:  guest.ID(entry.Parent),
		Script:  entry.Script,
		Timeout: timeout,
	}, nil
}

func parseDuration(s, field string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", field, err)
	}
	return d, nil
}

// convertCUEError turns a CUE error list into ValidationErrors with
// source positions.
func convertCUEError(err error) error {
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	e := errs[0]
	verr := ValidationError{Message: errors.Details(e, nil)}
	if pos := errors.Positions(e); len(pos) > 0 {
		verr.File = pos[0].Filename()
		verr.Line = pos[0].Line()
		verr.Column = pos[0].Column()
	}
	return verr
}
