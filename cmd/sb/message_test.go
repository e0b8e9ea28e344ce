package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// writeTestConfig lays down a sqlite-backed config in a temp dir and returns
// its path. Each test gets an isolated database file.
func writeTestConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	return writeConfigFile(t, dir, testConfigYAML(filepath.Join(dir, "sb.db")))
}

func runCmd(t *testing.T, args ...string) string {
	t.Helper()
	cmd := newRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)
	if err := cmd.Execute(); err != nil {
		t.Fatalf("sb %s: %v\noutput: %s", strings.Join(args, " "), err, buf.String())
	}
	return buf.String()
}

func runCmdErr(t *testing.T, args ...string) error {
	t.Helper()
	cmd := newRootCmd()
	cmd.SetOut(new(bytes.Buffer))
	cmd.SetErr(new(bytes.Buffer))
	cmd.SetArgs(args)
	return cmd.Execute()
}

func TestSendInboxAck(t *testing.T) {
	cfg := writeTestConfig(t)
	runCmd(t, "db", "init", "-c", cfg)

	out := runCmd(t, "send", "-c", cfg,
		"--from", "coordinator", "--to", "databot",
		"--type", "TASK_DELEGATION",
		"--payload", `{"task":"analyze churn metrics"}`)
	if !strings.Contains(out, "Sent message 1 to databot") {
		t.Errorf("unexpected send output: %s", out)
	}

	out = runCmd(t, "inbox", "-c", cfg, "--agent", "databot")
	if !strings.Contains(out, "TASK_DELEGATION") || !strings.Contains(out, "coordinator") {
		t.Errorf("unexpected inbox output: %s", out)
	}
	if !strings.Contains(out, "SENT") {
		t.Errorf("expected SENT status in inbox: %s", out)
	}

	out = runCmd(t, "ack", "1", "-c", cfg, "--by", "databot")
	if !strings.Contains(out, "Acknowledged message 1") {
		t.Errorf("unexpected ack output: %s", out)
	}

	out = runCmd(t, "inbox", "-c", cfg, "--agent", "databot")
	if !strings.Contains(out, "ACKNOWLEDGED") {
		t.Errorf("expected ACKNOWLEDGED status after ack: %s", out)
	}
}

func TestSendRejectsInvalidPayload(t *testing.T) {
	cfg := writeTestConfig(t)
	runCmd(t, "db", "init", "-c", cfg)

	err := runCmdErr(t, "send", "-c", cfg,
		"--from", "coordinator", "--to", "databot",
		"--type", "TASK_DELEGATION", "--payload", "not json")
	if err == nil {
		t.Fatal("expected error for invalid payload JSON")
	}
}

func TestSendRejectsUnknownRecipient(t *testing.T) {
	cfg := writeTestConfig(t)
	runCmd(t, "db", "init", "-c", cfg)

	err := runCmdErr(t, "send", "-c", cfg,
		"--from", "coordinator", "--to", "ghost",
		"--type", "TASK_DELEGATION", "--payload", `{"task":"x"}`)
	if err == nil {
		t.Fatal("expected error for unregistered recipient")
	}
}

func TestInboxEmpty(t *testing.T) {
	cfg := writeTestConfig(t)
	runCmd(t, "db", "init", "-c", cfg)

	out := runCmd(t, "inbox", "-c", cfg, "--agent", "coordinator")
	if !strings.Contains(out, "No messages for coordinator") {
		t.Errorf("unexpected empty inbox output: %s", out)
	}
}

func TestAckInvalidID(t *testing.T) {
	cfg := writeTestConfig(t)
	runCmd(t, "db", "init", "-c", cfg)

	if err := runCmdErr(t, "ack", "notanumber", "-c", cfg, "--by", "databot"); err == nil {
		t.Fatal("expected error for non-numeric message ID")
	}
}

func testConfigYAML(dbPath string) string {
	return fmt.Sprintf(`store:
  driver: sqlite
  path: %s
agents:
  - name: coordinator
    role: coordinator
    primary_capabilities: [strategic_planning, triage]
  - name: databot
    role: specialist
    primary_capabilities: [data_analysis]
    max_concurrent_tasks: 5
`, dbPath)
}

func writeConfigFile(t *testing.T, dir, yaml string) string {
	t.Helper()
	path := filepath.Join(dir, "switchboard.yaml")
	if err := os.WriteFile(path, []byte(yaml), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}
