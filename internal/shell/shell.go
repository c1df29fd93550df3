// Package shell provides an interactive prompt over an open bootloader session.
package shell

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/chzyer/readline"

	"github.com/bigbag/mcuboot-flasher/internal/mboot"
	"github.com/bigbag/mcuboot-flasher/internal/property"
	"github.com/bigbag/mcuboot-flasher/internal/protocol"
)

// Session is the part of *mboot.McuBoot the shell drives.
type Session interface {
	GetPropertyList() ([]property.Value, error)
	DecodeProperty(tag property.Tag, index uint32) (property.Value, error)
	AvailableCommands() ([]protocol.CommandTag, error)
	ReadMemory(address uint32, length int, opts ...mboot.OpOption) ([]byte, error)
	WriteMemory(address uint32, data []byte, opts ...mboot.OpOption) error
	FillMemory(address, length, pattern uint32) error
	FlashEraseAll(memID protocol.MemoryID) error
	FlashEraseRegion(address, length uint32, memID protocol.MemoryID) error
	ConfigureMemory(address uint32, memID protocol.MemoryID) error
	Execute(address, argument, stackPointer uint32) error
	Call(address, argument uint32) error
	Reset(reopen bool) error
	StatusString() string
}

var errUsage = errors.New("usage")

// Shell reads commands from a prompt and runs them on a session.
type Shell struct {
	s     Session
	out   io.Writer
	memID protocol.MemoryID
}

// New creates a shell writing its output to out.
func New(s Session, out io.Writer) *Shell {
	return &Shell{s: s, out: out}
}

// Run starts the interactive command loop. It returns when the user quits
// or input ends.
func (sh *Shell) Run() error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "mboot> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return fmt.Errorf("failed to create readline: %w", err)
	}
	defer rl.Close()
	sh.out = rl.Stdout()

	sh.printHelp()
	for {
		line, err := rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			}
			return nil
		}
		if sh.Execute(line) {
			return nil
		}
	}
}

// Execute runs one command line and reports whether the shell should exit.
func (sh *Shell) Execute(line string) bool {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return false
	}
	cmd := strings.ToLower(parts[0])
	args := parts[1:]

	var err error
	switch cmd {
	case "help", "?":
		sh.printHelp()
	case "info", "i":
		err = sh.cmdInfo()
	case "get", "g":
		err = sh.cmdGet(args)
	case "commands":
		err = sh.cmdCommands()
	case "mem":
		err = sh.cmdMem(args)
	case "read", "r":
		err = sh.cmdRead(args)
	case "write", "w":
		err = sh.cmdWrite(args)
	case "fill":
		err = sh.cmdFill(args)
	case "erase":
		err = sh.cmdErase(args)
	case "configure":
		err = sh.cmdConfigure(args)
	case "exec":
		err = sh.cmdExec(args)
	case "call":
		err = sh.cmdCall(args)
	case "reset":
		err = sh.s.Reset(true)
	case "status":
		fmt.Fprintln(sh.out, sh.s.StatusString())
	case "quit", "exit", "q":
		fmt.Fprintln(sh.out, "Exiting...")
		return true
	default:
		fmt.Fprintf(sh.out, "Unknown command: %s (type 'help' for commands)\n", cmd)
		return false
	}

	if errors.Is(err, errUsage) {
		fmt.Fprintln(sh.out, err)
	} else if err != nil {
		fmt.Fprintf(sh.out, "Error: %v\n", err)
	}
	return false
}

func (sh *Shell) printHelp() {
	fmt.Fprintln(sh.out, `
MCUboot Commands:
  info                           - Show all device properties
  get <property> [index]         - Show one property (name or number)
  commands                       - List supported commands
  mem <id>                       - Select memory for read/write (e.g. 0, 9, flexspinor)
  read <addr> <len> [file]       - Read memory (hex dump or save to file)
  write <addr> <file>            - Write a file to memory
  fill <addr> <len> <pattern>    - Fill memory with a 32-bit pattern
  erase [addr len]               - Erase all memory, or a region
  configure <addr> <id>          - Configure external memory from a config block
  exec <addr> <arg> <sp>         - Jump to code
  call <addr> <arg>              - Call a function
  reset                          - Reset the device and reconnect
  status                         - Show the last status
  quit                           - Exit`)
}

func (sh *Shell) cmdInfo() error {
	props, err := sh.s.GetPropertyList()
	if err != nil {
		return err
	}
	for _, p := range props {
		fmt.Fprintln(sh.out, p)
	}
	return nil
}

func (sh *Shell) cmdGet(args []string) error {
	if len(args) < 1 || len(args) > 2 {
		return fmt.Errorf("%w: get <property> [index]", errUsage)
	}
	tag, err := property.ParseTag(args[0])
	if err != nil {
		return err
	}
	var index uint32
	if len(args) == 2 {
		if index, err = parseUint32(args[1]); err != nil {
			return err
		}
	}
	v, err := sh.s.DecodeProperty(tag, index)
	if err != nil {
		return err
	}
	fmt.Fprintln(sh.out, v)
	return nil
}

func (sh *Shell) cmdCommands() error {
	cmds, err := sh.s.AvailableCommands()
	if err != nil {
		return err
	}
	for _, c := range cmds {
		fmt.Fprintf(sh.out, "  0x%02X %s\n", uint8(c), c)
	}
	return nil
}

func (sh *Shell) cmdMem(args []string) error {
	if len(args) != 1 {
		fmt.Fprintf(sh.out, "Memory: %s\n", sh.memID)
		return nil
	}
	id, err := protocol.ParseMemoryID(args[0])
	if err != nil {
		return err
	}
	sh.memID = id
	fmt.Fprintf(sh.out, "Memory: %s\n", id)
	return nil
}

func (sh *Shell) cmdRead(args []string) error {
	if len(args) < 2 || len(args) > 3 {
		return fmt.Errorf("%w: read <addr> <len> [file]", errUsage)
	}
	addr, length, err := parsePair(args[0], args[1])
	if err != nil {
		return err
	}
	data, err := sh.s.ReadMemory(addr, int(length), mboot.WithMemoryID(sh.memID))
	if err != nil && len(data) == 0 {
		return err
	}
	if err != nil {
		fmt.Fprintf(sh.out, "Warning: partial read of %d bytes: %v\n", len(data), err)
	}

	if len(args) == 3 {
		if werr := os.WriteFile(args[2], data, 0644); werr != nil {
			return werr
		}
		fmt.Fprintf(sh.out, "Saved %d bytes to %s\n", len(data), args[2])
		return nil
	}
	fmt.Fprint(sh.out, hex.Dump(data))
	return nil
}

func (sh *Shell) cmdWrite(args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("%w: write <addr> <file>", errUsage)
	}
	addr, err := parseUint32(args[0])
	if err != nil {
		return err
	}
	data, err := os.ReadFile(args[1])
	if err != nil {
		return err
	}
	if err := sh.s.WriteMemory(addr, data, mboot.WithMemoryID(sh.memID)); err != nil {
		return err
	}
	fmt.Fprintf(sh.out, "Wrote %d bytes at 0x%08X\n", len(data), addr)
	return nil
}

func (sh *Shell) cmdFill(args []string) error {
	if len(args) != 3 {
		return fmt.Errorf("%w: fill <addr> <len> <pattern>", errUsage)
	}
	vals, err := parseAll(args)
	if err != nil {
		return err
	}
	return sh.s.FillMemory(vals[0], vals[1], vals[2])
}

func (sh *Shell) cmdErase(args []string) error {
	switch len(args) {
	case 0:
		return sh.s.FlashEraseAll(sh.memID)
	case 2:
		addr, length, err := parsePair(args[0], args[1])
		if err != nil {
			return err
		}
		return sh.s.FlashEraseRegion(addr, length, sh.memID)
	default:
		return fmt.Errorf("%w: erase [addr len]", errUsage)
	}
}

func (sh *Shell) cmdConfigure(args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("%w: configure <addr> <id>", errUsage)
	}
	addr, err := parseUint32(args[0])
	if err != nil {
		return err
	}
	id, err := protocol.ParseMemoryID(args[1])
	if err != nil {
		return err
	}
	return sh.s.ConfigureMemory(addr, id)
}

func (sh *Shell) cmdExec(args []string) error {
	if len(args) != 3 {
		return fmt.Errorf("%w: exec <addr> <arg> <sp>", errUsage)
	}
	vals, err := parseAll(args)
	if err != nil {
		return err
	}
	return sh.s.Execute(vals[0], vals[1], vals[2])
}

func (sh *Shell) cmdCall(args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("%w: call <addr> <arg>", errUsage)
	}
	addr, arg, err := parsePair(args[0], args[1])
	if err != nil {
		return err
	}
	return sh.s.Call(addr, arg)
}

func parseUint32(s string) (uint32, error) {
	v, err := strconv.ParseUint(s, 0, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid number %q", s)
	}
	return uint32(v), nil
}

func parsePair(a, b string) (uint32, uint32, error) {
	x, err := parseUint32(a)
	if err != nil {
		return 0, 0, err
	}
	y, err := parseUint32(b)
	if err != nil {
		return 0, 0, err
	}
	return x, y, nil
}

func parseAll(args []string) ([]uint32, error) {
	vals := make([]uint32, len(args))
	for i, a := range args {
		v, err := parseUint32(a)
		if err != nil {
			return nil, err
		}
		vals[i] = v
	}
	return vals, nil
}
