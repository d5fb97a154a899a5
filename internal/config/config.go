// internal/config/config.go
package config

import (
	"encoding/xml"
	"fmt"
	"os"
)

// Config is the root <collection> element of the XML configuration
// file: connection parameters, PakBus addressing, and the set of
// tables to collect into the working directory.
type Config struct {
	XMLName     xml.Name         `xml:"collection"`
	Logger      string           `xml:"logger,attr"`
	StationName string           `xml:"station_name,attr"`
	Connection  ConnectionConfig `xml:"CONNECTION"`
	PakBus      PakBusConfig     `xml:"PAKBUS"`
	Data        DataConfig       `xml:"DATA"`
	Debug       bool             `xml:"DEBUG"`
}

// ---- CONNECTION ----

type ConnectionConfig struct {
	Type     string `xml:"type,attr"`
	PortName string `xml:"port_name"`
	BaudRate int    `xml:"baud_rate"`
	VTime    int    `xml:"vtime"` // tenths of a second; 0 means "use the default"
}

// ---- PAKBUS ----

type PakBusConfig struct {
	DstPakBusID     int    `xml:"dst_pakbus_id"`
	DstNodePakBusID int    `xml:"dst_node_pakbus_id"`
	SecurityCode    uint16 `xml:"security_code"`
}

// ---- DATA ----

type DataConfig struct {
	WorkingPath   string        `xml:"working_path"`
	CollectTables []TableConfig `xml:"collect_table>table"`
}

type TableConfig struct {
	Name          string `xml:",chardata"`
	SampleIntSecs int    `xml:"sample_int_secs,attr"`
	FileSpanSecs  int    `xml:"file_span_secs,attr"`
}

const (
	defaultFileSpanSecs  = 3600
	defaultSampleIntSecs = -1
	defaultVTime         = 10
)

// Load reads and unmarshals the XML configuration file at path,
// applying field defaults but performing no cross-field validation —
// callers must call Validate before trusting the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	var cfg Config
	if err := xml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	if cfg.Connection.VTime == 0 {
		cfg.Connection.VTime = defaultVTime
	}
	for i := range cfg.Data.CollectTables {
		t := &cfg.Data.CollectTables[i]
		if t.FileSpanSecs == 0 {
			t.FileSpanSecs = defaultFileSpanSecs
		}
		if t.SampleIntSecs == 0 {
			t.SampleIntSecs = defaultSampleIntSecs
		}
	}
	return &cfg, nil
}
