package mode

import (
	"recovery/internal/buttons"
	"recovery/internal/pending"
)

// Command is the first positional argument.
type Command string

const (
	CmdNone      Command = ""
	CmdStop      Command = "stop"
	CmdNetwork   Command = "network"
	CmdStorage   Command = "storage"
	CmdFatResize Command = "fatresize"
	CmdFsck      Command = "fsck"
	CmdMenu      Command = "menu"
	CmdStart     Command = "start"
)

// Commands lists every recognised sub-command.
var Commands = []Command{CmdStop, CmdNetwork, CmdStorage, CmdFatResize, CmdFsck, CmdMenu, CmdStart}

// Request is the parsed command line. Trailing arguments a command does not
// use are kept but ignored.
type Request struct {
	Command Command
	Args    []string
}

// NetworkOn is "network on": forced network bring-up without splash.
func (r Request) NetworkOn() bool {
	return r.Command == CmdNetwork && len(r.Args) > 0 && r.Args[0] == "on"
}

// Flags is the subset of the flag store the resolver reads.
type Flags interface {
	Set(pending.Flag) bool
}

// Inputs are the facts Resolve consults. Buttons is only called once the stop
// command has been ruled out.
type Inputs struct {
	Buttons func() buttons.State
	Flags   Flags
}

// NetworkChord is held at boot to force the headless network path.
func NetworkChord(s buttons.State) bool {
	return s.AnyOf(buttons.Power, buttons.Select) && s.Pressed(buttons.Y)
}

// MenuChord is held at boot to open the recovery menu.
func MenuChord(s buttons.State) bool {
	return s.AnyOf(buttons.Power, buttons.Select) && s.AnyOf(buttons.B, buttons.A)
}

var cliModes = map[Command]Mode{
	CmdNetwork:   UsbNetwork,
	CmdStorage:   UsbStorage,
	CmdFatResize: PartitionResize,
	CmdFsck:      FilesystemCheck,
	CmdMenu:      Menu,
	CmdStart:     Start,
}

var flagModes = map[pending.Flag]Mode{
	pending.ResizePending:    PartitionResize,
	pending.DataResetPending: DataReset,
	pending.FsckPending:      FilesystemCheck,
}

// Resolve applies the precedence rules top to bottom; the first match wins:
//
//  1. stop command
//  2. network chord or "network on": headless network
//  3. explicit command
//  4. persisted flags in pending.Order
//  5. menu chord
//  6. Start
func Resolve(req Request, in Inputs) Decision {
	if req.Command == CmdStop {
		return Decision{Kind: KindStop, Reason: "stop command"}
	}

	var held buttons.State
	if in.Buttons != nil {
		held = in.Buttons()
	}

	if NetworkChord(held) {
		return Decision{Kind: KindHeadless, Mode: UsbNetwork, Quiet: req.NetworkOn(), Reason: "network chord held"}
	}
	if req.NetworkOn() {
		return Decision{Kind: KindHeadless, Mode: UsbNetwork, Quiet: true, Reason: "network on command"}
	}

	d := Decision{Kind: KindMode}
	if in.Flags != nil {
		d.FirstBoot = in.Flags.Set(pending.FsckPending)
	}

	if m, ok := cliModes[req.Command]; ok {
		d.Mode = m
		d.Reason = string(req.Command) + " command"
		return d
	}

	if in.Flags != nil {
		for _, f := range pending.Order {
			if in.Flags.Set(f) {
				d.Mode = flagModes[f]
				d.Reason = f.String() + " flag"
				return d
			}
		}
	}

	if MenuChord(held) {
		d.Mode = Menu
		d.Reason = "menu chord held"
		return d
	}

	d.Mode = Start
	d.Reason = "default"
	return d
}
