// internal/config/validate.go
package config

import "fmt"

// Validate checks configuration correctness.
// It performs declarative validation only.
// It MUST NOT mutate configuration.
func Validate(cfg *Config) error {
	if cfg.Connection.PortName == "" {
		return fmt.Errorf("CONNECTION: port_name is required")
	}
	if cfg.Connection.Type != "serial" {
		return fmt.Errorf("CONNECTION: type %q is not supported, only \"serial\" is", cfg.Connection.Type)
	}

	if cfg.PakBus.DstPakBusID < 1 || cfg.PakBus.DstPakBusID > 4094 {
		return fmt.Errorf("PAKBUS: dst_pakbus_id %d out of range 1..4094", cfg.PakBus.DstPakBusID)
	}
	if cfg.PakBus.DstNodePakBusID < 1 || cfg.PakBus.DstNodePakBusID > 4094 {
		return fmt.Errorf("PAKBUS: dst_node_pakbus_id %d out of range 1..4094", cfg.PakBus.DstNodePakBusID)
	}

	if cfg.Data.WorkingPath == "" {
		return fmt.Errorf("DATA: working_path is required")
	}
	if len(cfg.Data.CollectTables) == 0 {
		return fmt.Errorf("DATA: at least one collect_table entry is required")
	}

	seen := make(map[string]bool, len(cfg.Data.CollectTables))
	for _, t := range cfg.Data.CollectTables {
		if t.Name == "" {
			return fmt.Errorf("DATA: collect_table entry with an empty table name")
		}
		if seen[t.Name] {
			return fmt.Errorf("DATA: table %q listed more than once in collect_table", t.Name)
		}
		seen[t.Name] = true

		if t.FileSpanSecs <= 0 {
			return fmt.Errorf("DATA: table %q has non-positive file_span_secs %d", t.Name, t.FileSpanSecs)
		}
	}

	return nil
}
