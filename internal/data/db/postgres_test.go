package db

import (
	"net/url"
	"testing"
	"time"
)

func TestBuildDSNAppliesProfileTimeouts(t *testing.T) {
	cfg := Config{Host: "localhost", Port: "5432", User: "pod", Password: "p@ss", Name: "podreach"}

	cases := []struct {
		name    string
		profile PoolProfile
		stmt    string
		connect string
	}{
		{name: "interactive", profile: DefaultInteractiveProfile(), stmt: "30000", connect: "5"},
		{name: "background", profile: DefaultBackgroundProfile(), stmt: "1800000", connect: "30"},
		{name: "sub_second_connect", profile: PoolProfile{Name: "x", ConnectTimeout: 200 * time.Millisecond}, stmt: "", connect: "1"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			u, err := url.Parse(BuildDSN(cfg, tc.profile))
			if err != nil {
				t.Fatalf("parse dsn: %v", err)
			}
			q := u.Query()
			if q.Get("statement_timeout") != tc.stmt {
				t.Fatalf("statement_timeout=%q, want %q", q.Get("statement_timeout"), tc.stmt)
			}
			if q.Get("connect_timeout") != tc.connect {
				t.Fatalf("connect_timeout=%q, want %q", q.Get("connect_timeout"), tc.connect)
			}
			if q.Get("sslmode") != "disable" {
				t.Fatalf("sslmode default missing")
			}
			if pw, _ := u.User.Password(); pw != "p@ss" {
				t.Fatalf("password not preserved")
			}
		})
	}
}

func TestBuildDSNOverride(t *testing.T) {
	cfg := Config{DSN: "postgres://a:b@db:6543/x?sslmode=require"}
	u, err := url.Parse(BuildDSN(cfg, DefaultInteractiveProfile()))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if u.Host != "db:6543" || u.Query().Get("sslmode") != "require" {
		t.Fatalf("override not honored: %s", u.String())
	}
	if u.Query().Get("application_name") != "podreach-interactive" {
		t.Fatalf("application_name missing")
	}
}
