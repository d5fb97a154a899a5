package collector

import (
	"encoding/xml"
	"os"

	"github.com/csilogger/pbcollect/internal/tdf"
)

// xmlTables is the human-readable dump written to .working/tdf.xml
// alongside the cached binary tdf.dat, for operators inspecting what
// the logger actually reported without a binary parser on hand.
type xmlTables struct {
	XMLName xml.Name   `xml:"tables"`
	Table   []xmlTable `xml:"table"`
}

type xmlTable struct {
	Name      string    `xml:"name,attr"`
	Number    int       `xml:"number,attr"`
	Size      uint32    `xml:"size,attr"`
	Signature uint16    `xml:"signature,attr"`
	Field     []xmlField `xml:"field"`
}

type xmlField struct {
	Name       string `xml:"name,attr"`
	Type       byte   `xml:"type,attr"`
	Unit       string `xml:"unit,attr"`
	Processing string `xml:"processing,attr"`
	Dimension  uint32 `xml:"dimension,attr"`
}

func dumpTDFXML(path string, tables []*tdf.Table) error {
	doc := xmlTables{}
	for _, t := range tables {
		xt := xmlTable{Name: t.Name, Number: t.Number, Size: t.Size, Signature: t.Signature}
		for _, f := range t.Fields {
			xt.Field = append(xt.Field, xmlField{
				Name: f.Name, Type: byte(f.Type), Unit: f.Unit,
				Processing: f.Processing, Dimension: f.Dimension,
			})
		}
		doc.Table = append(doc.Table, xt)
	}

	data, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append([]byte(xml.Header), data...), 0o644)
}
