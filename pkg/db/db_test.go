package db

import "testing"

func TestDialector(t *testing.T) {
	for _, driver := range []string{"mysql", "postgres"} {
		d, err := Dialector(driver, "dsn")
		if err != nil {
			t.Fatalf("Dialector(%q) error = %v", driver, err)
		}
		if d.Name() != driver {
			t.Errorf("Dialector(%q).Name() = %q", driver, d.Name())
		}
	}

	if _, err := Dialector("sqlite", "dsn"); err == nil {
		t.Error("Dialector(sqlite) expected error")
	}
}
