package core

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestConfig_DatabaseURL(t *testing.T) {
	cfg := &Config{}
	cfg.Database.Engine = "postgres"
	cfg.Database.Host = "localhost"
	cfg.Database.Port = 5432
	cfg.Database.Name = "testdb"
	cfg.Database.Username = "testuser"
	cfg.Database.Password = "testpassword"
	cfg.Database.SSLMode = "disable"

	url := cfg.DatabaseURL()
	expected := "host=localhost port=5432 dbname=testdb user=testuser password=testpassword sslmode=disable"
	if url != expected {
		t.Errorf("DatabaseURL() want = %s, got = %s", expected, url)
	}
}

func TestConfig_BroadcastIP(t *testing.T) {
	cfg := &Config{ExternalIP: "192.168.1.5"}

	ip := cfg.BroadcastIP()
	expected := [4]byte{192, 168, 1, 5}
	if diff := cmp.Diff(expected, ip); diff != "" {
		t.Errorf("BroadcastIP() generated the wrong IP; diff:\n%s", diff)
	}
}

func TestConfig_Directories(t *testing.T) {
	cfg := &Config{DataDir: "/srv/ragol"}

	dirs := map[string]string{
		cfg.SystemDir(): "/srv/ragol/system",
		cfg.QuestDir():  "/srv/ragol/quests",
		cfg.Ep3Dir():    "/srv/ragol/ep3",
		cfg.KeyDir():    "/srv/ragol/system/keys",
	}
	for got, want := range dirs {
		if got != want {
			t.Errorf("directory want = %s, got = %s", want, got)
		}
	}
}
