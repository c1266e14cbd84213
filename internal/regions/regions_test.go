package regions

import "testing"

func TestWhitelistCompleteness(t *testing.T) {
	for _, dt := range DataTypes {
		if Whitelist(dt) == "" {
			t.Errorf("data type %q has no whitelist", dt)
		}
		if !dt.Valid() {
			t.Errorf("data type %q reported invalid", dt)
		}
	}

	if DataType("color").Valid() {
		t.Error("unknown data type reported valid")
	}
	if got := Whitelist(DataType("color")); got != "" {
		t.Errorf("unknown data type whitelist = %q, want empty", got)
	}
}

func TestWhitelistValues(t *testing.T) {
	testCases := []struct {
		dt   DataType
		want string
	}{
		{DataTypeTime, "1234567890:"},
		{DataTypeNumber, "1234567890"},
		{DataTypeText, "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"},
		{DataTypeGold, "1234567890.k"},
	}

	for _, tc := range testCases {
		t.Run(string(tc.dt), func(t *testing.T) {
			if got := Whitelist(tc.dt); got != tc.want {
				t.Errorf("Whitelist(%q) = %q, want %q", tc.dt, got, tc.want)
			}
		})
	}
}

func TestCatalogPreservesOrder(t *testing.T) {
	c := NewCatalog("test",
		Region{Name: "b", Type: DataTypeText},
		Region{Name: "a", Type: DataTypeNumber},
		Region{Name: "b", Type: DataTypeGold},
	)

	got := c.Regions()
	want := []string{"b", "a", "b"}
	if len(got) != len(want) {
		t.Fatalf("expected %d regions, got %d", len(want), len(got))
	}
	for i, name := range want {
		if got[i].Name != name {
			t.Errorf("region %d: expected %q, got %q", i, name, got[i].Name)
		}
	}
}

func TestCatalogIsImmutable(t *testing.T) {
	src := []Region{{Name: "Time", Type: DataTypeTime}}
	c := NewCatalog("test", src...)

	src[0].Name = "changed"
	regions := c.Regions()
	regions[0].Name = "changed again"

	if got := c.Regions()[0].Name; got != "Time" {
		t.Errorf("catalog mutated from outside: got %q", got)
	}
}

func TestLoLTournamentCatalog(t *testing.T) {
	c, err := Lookup("lol-tournament")
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if c.Len() != 7 {
		t.Fatalf("expected 7 regions, got %d", c.Len())
	}

	first := c.Regions()[0]
	if first.Name != "Time" || first.Type != DataTypeTime {
		t.Errorf("unexpected first region: %+v", first)
	}
	if first.Bounds != (BoundingBox{X: 930, Y: 75, Width: 100, Height: 25}) {
		t.Errorf("unexpected Time bounds: %+v", first.Bounds)
	}

	for _, r := range c.Regions() {
		if !r.Type.Valid() {
			t.Errorf("region %q has invalid type %q", r.Name, r.Type)
		}
		b := r.Bounds
		if b.X < 0 || b.Y < 0 || b.X+b.Width > NormalizedWidth || b.Y+b.Height > NormalizedHeight {
			t.Errorf("region %q bounds %+v outside normalized frame", r.Name, b)
		}
	}
}

func TestLookupUnknown(t *testing.T) {
	if _, err := Lookup("dota"); err == nil {
		t.Error("expected error for unknown catalog")
	}
}
