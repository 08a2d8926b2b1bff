// Package sh provides an interactive shell driving a simulated bridge.
package sh

import (
	"encoding/json"
	"flag"
	"log"

	"github.com/abiosoft/ishell"

	"github.com/robotalks/bridge.go/pkg/env"
)

// Shell provides ishell backed interactive shell.
type Shell struct {
	Interactive bool
	OutputJSON  bool

	Shell  *ishell.Shell
	Config *env.Config
	Sim    *Sim
}

const (
	shellKey       = "$shell"
	detachedPrompt = "[detached] > "
	attachedPrompt = "[attached] > "
)

var (
	// flags

	evalOnly   bool
	outputJSON bool

	// commands
	commands = []*ishell.Cmd{
		&AttachCmd,
		&DetachCmd,
		&SendCmd,
		&RecvCmd,
		&TypeCmd,
		&ReadCmd,
		&StatusCmd,
		&StatsCmd,
		&CheckCmd,
	}
)

func init() {
	flag.BoolVar(&evalOnly, "e", evalOnly, "Evaluation only, no interactive shell.")
	flag.BoolVar(&outputJSON, "json", outputJSON, "Print output in JSON.")
}

// AddCmds is used by other commands providers during init func.
func AddCmds(cmds ...*ishell.Cmd) {
	commands = append(commands, cmds...)
}

// New creates a new shell.
func New(conf *env.Config) *Shell {
	s := &Shell{
		Interactive: !evalOnly,
		OutputJSON:  outputJSON,

		Shell:  ishell.New(),
		Config: conf,
	}
	s.Shell.Set(shellKey, s)
	s.Shell.SetPrompt(detachedPrompt)
	for _, cmd := range commands {
		s.Shell.AddCmd(cmd)
	}
	return s
}

// ShellFrom gets Shell from ishell context.
func ShellFrom(c *ishell.Context) *Shell {
	return c.Get(shellKey).(*Shell)
}

// MustBeAttached wraps command func requires an attached host.
func MustBeAttached(fn func(c *ishell.Context)) func(c *ishell.Context) {
	return func(c *ishell.Context) {
		if !ShellFrom(c).Sim.Packet.Attached() {
			c.Err(errNotAttached)
			return
		}
		fn(c)
	}
}

// Print prints v as JSON if requested, otherwise with format.
func (s *Shell) Print(c *ishell.Context, v interface{}, format string, args ...interface{}) {
	if s.OutputJSON {
		out, err := json.Marshal(v)
		if err != nil {
			c.Err(err)
			return
		}
		c.Println(string(out))
		return
	}
	c.Printf(format, args...)
}

// Attach attaches the simulated host.
func (s *Shell) Attach() {
	s.Sim.Packet.Attach()
	s.Shell.SetPrompt(attachedPrompt)
}

// Detach detaches the simulated host.
func (s *Shell) Detach() {
	s.Sim.Packet.Detach()
	s.Shell.SetPrompt(detachedPrompt)
}

// Run starts the simulated bridge and runs the shell.
func (s *Shell) Run(args ...string) {
	sim, err := StartSim(s.Config)
	if err != nil {
		log.Fatalln(err)
	}
	s.Sim = sim
	defer func() {
		if err := sim.Stop(); err != nil {
			log.Println(err)
		}
	}()

	if len(args) > 0 {
		if err := s.Shell.Process(args...); err != nil {
			log.Println(err)
		}
		return
	}
	if s.Interactive {
		s.Shell.Printf("Simulating %s\n", s.Config.ID)
		s.Shell.Run()
		return
	}
	log.Println("command expected")
}

// Main is a helper to provide a single call in main.
func Main() {
	if err := env.Parse(); err != nil {
		log.Fatalln(err)
	}
	New(env.NewConfig()).Run(flag.Args()...)
}
