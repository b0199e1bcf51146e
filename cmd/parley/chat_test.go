package main

import (
	"strings"
	"testing"
)

func TestChatCmd_Help(t *testing.T) {
	out, err := runCmd(t, "", "chat", "--help")
	if err != nil {
		t.Fatalf("chat --help failed: %v", err)
	}
	for _, sub := range []string{"agent", "customer"} {
		if !strings.Contains(out, sub) {
			t.Errorf("expected help to list %q subcommand, got: %s", sub, out)
		}
	}
}

func TestChatAgentCmd_Flags(t *testing.T) {
	cmd := newChatAgentCmd()
	if cmd.Use != "agent" {
		t.Errorf("Use = %q, want %q", cmd.Use, "agent")
	}
	if f := cmd.Flags().Lookup("server"); f == nil || f.DefValue != "http://localhost:8084" {
		t.Errorf("server flag = %+v", f)
	}
	if f := cmd.Flags().Lookup("user"); f == nil || f.DefValue != "support" {
		t.Errorf("user flag = %+v", f)
	}
}

func TestChatCustomerCmd_RequiresUser(t *testing.T) {
	if _, err := runCmd(t, "", "chat", "customer"); err == nil {
		t.Error("expected error when --user is missing")
	}
}

func TestBrokerWSURL(t *testing.T) {
	cases := map[string]string{
		"http://localhost:8084":   "ws://localhost:8084/ws",
		"http://localhost:8084/":  "ws://localhost:8084/ws",
		"https://chat.example.io": "wss://chat.example.io/ws",
	}
	for in, want := range cases {
		if got := brokerWSURL(in); got != want {
			t.Errorf("brokerWSURL(%q) = %q, want %q", in, got, want)
		}
	}
}
