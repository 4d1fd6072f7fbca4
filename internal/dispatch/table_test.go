package dispatch

import (
	"reflect"
	"testing"
)

func bindAll(calls map[ID]int) map[ID]Action {
	actions := make(map[ID]Action)
	for _, k := range Catalog() {
		id := k.ID
		actions[id] = func() error {
			calls[id]++
			return nil
		}
	}
	return actions
}

func TestBuildWithSecondary(t *testing.T) {
	table, err := Build(DefaultTemplate, bindAll(map[ID]int{}), true)
	if err != nil {
		t.Fatal(err)
	}

	want := []string{
		"Network Mode", "USB Storage Mode", "Check File System", "Data Reset",
		"Format Ext SD Card", "Reboot", "Power Off",
	}
	if got := table.Labels(); !reflect.DeepEqual(got, want) {
		t.Errorf("labels = %q, want %q", got, want)
	}
	if table.Index(Resize) != -1 {
		t.Error("resize must be excluded by default")
	}
}

func TestBuildWithoutSecondary(t *testing.T) {
	table, err := Build(DefaultTemplate, bindAll(map[ID]int{}), false)
	if err != nil {
		t.Fatal(err)
	}

	want := []string{"Network Mode", "Check File System", "Data Reset", "Reboot", "Power Off"}
	if got := table.Labels(); !reflect.DeepEqual(got, want) {
		t.Errorf("labels = %q, want %q", got, want)
	}
}

func TestWithoutSecondaryIdempotent(t *testing.T) {
	table, err := Build(DefaultTemplate, bindAll(map[ID]int{}), true)
	if err != nil {
		t.Fatal(err)
	}
	once := table.WithoutSecondary()
	twice := once.WithoutSecondary()
	if !reflect.DeepEqual(once.Labels(), twice.Labels()) {
		t.Errorf("second removal changed table: %q -> %q", once.Labels(), twice.Labels())
	}
}

func TestBuildInvariants(t *testing.T) {
	templates := [][]ID{
		DefaultTemplate,
		{Reboot, PowerOff},
		{Resize, Storage, FormatExt, Reboot, PowerOff},
		{PowerOff, Network, Reboot},
	}
	for _, tpl := range templates {
		for _, secondary := range []bool{true, false} {
			table, err := Build(tpl, bindAll(map[ID]int{}), secondary)
			if err != nil {
				t.Fatalf("%v: %v", tpl, err)
			}
			if len(table) < 2 {
				t.Errorf("%v secondary=%t: table too short: %q", tpl, secondary, table.Labels())
			}
			if table.Index(Reboot) < 0 || table.Index(PowerOff) < 0 {
				t.Errorf("%v secondary=%t: permanent entries missing", tpl, secondary)
			}
			seen := map[string]bool{}
			for _, l := range table.Labels() {
				if seen[l] {
					t.Errorf("duplicate label %q", l)
				}
				seen[l] = true
			}
		}
	}
}

func TestBuildRejects(t *testing.T) {
	calls := map[ID]int{}
	tests := []struct {
		name     string
		template []ID
		actions  map[ID]Action
	}{
		{"unknown", []ID{"bogus", Reboot, PowerOff}, bindAll(calls)},
		{"duplicate", []ID{Network, Network, Reboot, PowerOff}, bindAll(calls)},
		{"no reboot", []ID{Network, PowerOff}, bindAll(calls)},
		{"no poweroff", []ID{Network, Reboot}, bindAll(calls)},
		{"unbound", DefaultTemplate, map[ID]Action{Reboot: func() error { return nil }}},
	}
	for _, tc := range tests {
		if _, err := Build(tc.template, tc.actions, true); err == nil {
			t.Errorf("%s: expected error", tc.name)
		}
	}
}

func TestEntriesKeepTheirAction(t *testing.T) {
	calls := map[ID]int{}
	table, err := Build(DefaultTemplate, bindAll(calls), false)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range table {
		if err := e.Action(); err != nil {
			t.Fatal(err)
		}
	}
	for _, e := range table {
		if calls[e.ID] != 1 {
			t.Errorf("%s called %d times", e.ID, calls[e.ID])
		}
	}
	if calls[Storage] != 0 || calls[FormatExt] != 0 {
		t.Error("removed entries must not be reachable")
	}
}
