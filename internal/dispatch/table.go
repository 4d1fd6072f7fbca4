// Package dispatch builds the ordered list of menu rows and the action each
// row runs.
package dispatch

import (
	"errors"
	"fmt"
)

// ID is the stable identity of an action. Entries are bound and removed by
// ID, never by position.
type ID string

const (
	Network   ID = "network"
	Storage   ID = "storage"
	Fsck      ID = "fsck"
	Resize    ID = "resize"
	DataReset ID = "data-reset"
	FormatExt ID = "format-ext"
	Reboot    ID = "reboot"
	PowerOff  ID = "poweroff"
)

// Action runs one menu entry. Returning ErrExit ends the interactive session.
type Action func() error

// ErrExit is returned by actions after which the menu must not resume, such
// as reboot and power off.
var ErrExit = errors.New("session ended")

// Kind describes an action independently of any binding.
type Kind struct {
	ID    ID
	Label string

	// NeedsSecondary entries act on the external card and are dropped when
	// it is absent.
	NeedsSecondary bool

	// Permanent entries survive every removal rule.
	Permanent bool
}

var catalog = []Kind{
	{ID: Network, Label: "Network Mode"},
	{ID: Storage, Label: "USB Storage Mode", NeedsSecondary: true},
	{ID: Fsck, Label: "Check File System"},
	{ID: Resize, Label: "Resize File System"},
	{ID: DataReset, Label: "Data Reset"},
	{ID: FormatExt, Label: "Format Ext SD Card", NeedsSecondary: true},
	{ID: Reboot, Label: "Reboot", Permanent: true},
	{ID: PowerOff, Label: "Power Off", Permanent: true},
}

// DefaultTemplate is the stock menu. Resize is known but left out.
var DefaultTemplate = []ID{Network, Storage, Fsck, DataReset, FormatExt, Reboot, PowerOff}

// Lookup returns the catalog entry for id.
func Lookup(id ID) (Kind, bool) {
	for _, k := range catalog {
		if k.ID == id {
			return k, true
		}
	}
	return Kind{}, false
}

// Catalog returns every known action kind in canonical order.
func Catalog() []Kind {
	return append([]Kind(nil), catalog...)
}

// Entry is one menu row.
type Entry struct {
	Kind
	Action Action
}

// Table is the ordered, non-empty sequence of menu rows. It is not modified
// once the menu loop starts.
type Table []Entry

// Labels returns the row labels in display order.
func (t Table) Labels() []string {
	labels := make([]string, len(t))
	for i, e := range t {
		labels[i] = e.Label
	}
	return labels
}

// Index returns the position of id, or -1.
func (t Table) Index(id ID) int {
	for i, e := range t {
		if e.ID == id {
			return i
		}
	}
	return -1
}

// WithoutSecondary drops every entry that needs the external card and keeps
// the relative order of the rest. Applying it twice gives the same table.
func (t Table) WithoutSecondary() Table {
	out := make(Table, 0, len(t))
	for _, e := range t {
		if e.NeedsSecondary && !e.Permanent {
			continue
		}
		out = append(out, e)
	}
	return out
}

// Build binds template to actions and applies the removal rule. It fails on
// an unknown or unbound ID, a duplicate label, or a template missing a
// permanent entry.
func Build(template []ID, actions map[ID]Action, hasSecondary bool) (Table, error) {
	t := make(Table, 0, len(template))
	seen := make(map[string]bool, len(template))
	for _, id := range template {
		k, ok := Lookup(id)
		if !ok {
			return nil, fmt.Errorf("unknown menu action %q", id)
		}
		a := actions[id]
		if a == nil {
			return nil, fmt.Errorf("menu action %q is not bound", id)
		}
		if seen[k.Label] {
			return nil, fmt.Errorf("duplicate menu entry %q", k.Label)
		}
		seen[k.Label] = true
		t = append(t, Entry{Kind: k, Action: a})
	}

	for _, k := range catalog {
		if k.Permanent && t.Index(k.ID) < 0 {
			return nil, fmt.Errorf("menu template lacks %q", k.Label)
		}
	}

	if !hasSecondary {
		t = t.WithoutSecondary()
	}
	return t, nil
}
