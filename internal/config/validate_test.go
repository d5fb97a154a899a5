// internal/config/validate_test.go
package config

import "testing"

func baseConfig() *Config {
	return &Config{
		Logger:      "CR1000",
		StationName: "Station1",
		Connection: ConnectionConfig{
			Type:     "serial",
			PortName: "/dev/ttyS0",
			BaudRate: 9600,
		},
		PakBus: PakBusConfig{
			DstPakBusID:     1000,
			DstNodePakBusID: 1000,
			SecurityCode:    0,
		},
		Data: DataConfig{
			WorkingPath: "/var/lib/pbcollect",
			CollectTables: []TableConfig{
				{Name: "Test", FileSpanSecs: 3600, SampleIntSecs: -1},
			},
		},
	}
}

func TestValidate_WellFormedConfigPasses(t *testing.T) {
	if err := Validate(baseConfig()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_MissingPortNameRejected(t *testing.T) {
	cfg := baseConfig()
	cfg.Connection.PortName = ""
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for empty port_name")
	}
}

func TestValidate_UnsupportedConnectionTypeRejected(t *testing.T) {
	cfg := baseConfig()
	cfg.Connection.Type = "tcp"
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for non-serial connection type")
	}
}

func TestValidate_PakBusIDOutOfRangeRejected(t *testing.T) {
	cfg := baseConfig()
	cfg.PakBus.DstPakBusID = 4095
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for dst_pakbus_id out of range")
	}
}

func TestValidate_NodeIDZeroRejected(t *testing.T) {
	cfg := baseConfig()
	cfg.PakBus.DstNodePakBusID = 0
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for dst_node_pakbus_id out of range")
	}
}

func TestValidate_MissingWorkingPathRejected(t *testing.T) {
	cfg := baseConfig()
	cfg.Data.WorkingPath = ""
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for empty working_path")
	}
}

func TestValidate_NoCollectTablesRejected(t *testing.T) {
	cfg := baseConfig()
	cfg.Data.CollectTables = nil
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for no collect_table entries")
	}
}

func TestValidate_DuplicateTableNameRejected(t *testing.T) {
	cfg := baseConfig()
	cfg.Data.CollectTables = append(cfg.Data.CollectTables,
		TableConfig{Name: "Test", FileSpanSecs: 3600, SampleIntSecs: -1})
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for duplicate table name")
	}
}

func TestValidate_NonPositiveFileSpanRejected(t *testing.T) {
	cfg := baseConfig()
	cfg.Data.CollectTables[0].FileSpanSecs = 0
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for non-positive file_span_secs")
	}
}

func TestNormalize_UnsupportedBaudRateFallsBackTo9600(t *testing.T) {
	cfg := baseConfig()
	cfg.Connection.BaudRate = 4800
	Normalize(cfg)
	if cfg.Connection.BaudRate != 9600 {
		t.Fatalf("BaudRate = %d, want 9600 fallback", cfg.Connection.BaudRate)
	}
}

func TestNormalize_SupportedBaudRateUnchanged(t *testing.T) {
	cfg := baseConfig()
	cfg.Connection.BaudRate = 115200
	Normalize(cfg)
	if cfg.Connection.BaudRate != 115200 {
		t.Fatalf("BaudRate = %d, want 115200 unchanged", cfg.Connection.BaudRate)
	}
}

func TestApplyOverride_DeviceOnly(t *testing.T) {
	cfg := baseConfig()
	ApplyOverride(cfg, "/dev/ttyUSB0")
	if cfg.Connection.PortName != "/dev/ttyUSB0" {
		t.Fatalf("PortName = %q, want /dev/ttyUSB0", cfg.Connection.PortName)
	}
	if cfg.Connection.BaudRate != 9600 {
		t.Fatalf("BaudRate = %d, want unchanged 9600", cfg.Connection.BaudRate)
	}
}

func TestApplyOverride_DeviceAndBaud(t *testing.T) {
	cfg := baseConfig()
	ApplyOverride(cfg, "/dev/ttyUSB0,38400")
	if cfg.Connection.PortName != "/dev/ttyUSB0" {
		t.Fatalf("PortName = %q, want /dev/ttyUSB0", cfg.Connection.PortName)
	}
	if cfg.Connection.BaudRate != 38400 {
		t.Fatalf("BaudRate = %d, want 38400", cfg.Connection.BaudRate)
	}
}
