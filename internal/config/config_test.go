// internal/config/config_test.go
package config

import (
	"os"
	"path/filepath"
	"testing"
)

const sampleXML = `<?xml version="1.0"?>
<collection logger="CR1000" station_name="Station1">
  <CONNECTION type="serial">
    <port_name>/dev/ttyS0</port_name>
    <baud_rate>9600</baud_rate>
  </CONNECTION>
  <PAKBUS>
    <dst_pakbus_id>1000</dst_pakbus_id>
    <dst_node_pakbus_id>1000</dst_node_pakbus_id>
    <security_code>0</security_code>
  </PAKBUS>
  <DATA>
    <working_path>/var/lib/pbcollect</working_path>
    <collect_table>
      <table sample_int_secs="60" file_span_secs="86400">Test</table>
      <table>Other</table>
    </collect_table>
  </DATA>
</collection>
`

func TestLoadParsesAndAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.xml")
	if err := os.WriteFile(path, []byte(sampleXML), 0o644); err != nil {
		t.Fatalf("writing sample config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Logger != "CR1000" || cfg.StationName != "Station1" {
		t.Fatalf("got logger=%q station=%q", cfg.Logger, cfg.StationName)
	}
	if cfg.Connection.PortName != "/dev/ttyS0" || cfg.Connection.BaudRate != 9600 {
		t.Fatalf("unexpected CONNECTION: %+v", cfg.Connection)
	}
	if cfg.Connection.VTime != defaultVTime {
		t.Fatalf("VTime = %d, want default %d", cfg.Connection.VTime, defaultVTime)
	}
	if cfg.PakBus.DstPakBusID != 1000 || cfg.PakBus.DstNodePakBusID != 1000 {
		t.Fatalf("unexpected PAKBUS: %+v", cfg.PakBus)
	}
	if len(cfg.Data.CollectTables) != 2 {
		t.Fatalf("got %d tables, want 2", len(cfg.Data.CollectTables))
	}

	first := cfg.Data.CollectTables[0]
	if first.Name != "Test" || first.SampleIntSecs != 60 || first.FileSpanSecs != 86400 {
		t.Fatalf("unexpected first table: %+v", first)
	}
	second := cfg.Data.CollectTables[1]
	if second.Name != "Other" || second.SampleIntSecs != defaultSampleIntSecs || second.FileSpanSecs != defaultFileSpanSecs {
		t.Fatalf("unexpected second table defaults: %+v", second)
	}
}

func TestLoadMissingFileReturnsError(t *testing.T) {
	if _, err := Load("/nonexistent/config.xml"); err == nil {
		t.Fatal("expected error for missing config file")
	}
}
