// Package collector implements the Orchestrator: one session's
// worth of connect/handshake/collect/teardown against a datalogger,
// driven around the PakBus link, BMP5 and PakCtrl protocol layers.
package collector

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/csilogger/pbcollect/internal/config"
	"github.com/csilogger/pbcollect/internal/cursor"
	"github.com/csilogger/pbcollect/internal/pakbus/bmp5"
	"github.com/csilogger/pbcollect/internal/pakbus/framer"
	"github.com/csilogger/pbcollect/internal/pakbus/link"
	"github.com/csilogger/pbcollect/internal/pakbus/pakctrl"
	"github.com/csilogger/pbcollect/internal/pakbus/transport"
	"github.com/csilogger/pbcollect/internal/pbtime"
	"github.com/csilogger/pbcollect/internal/perr"
	"github.com/csilogger/pbcollect/internal/tdf"
	"github.com/csilogger/pbcollect/internal/writer"
	"github.com/rs/zerolog"
)

// MaxTimeOffset is the largest clock skew tolerated between the
// process and the logger before a clock-set is attempted; a failed
// set is session-fatal.
const MaxTimeOffset = 1 * time.Second

// session holds one connect/collect/teardown cycle's state: the
// protocol layers built over the shared transport, the tables bound
// from the TDF, and the TOA5 writer.
type session struct {
	cfg *config.Config
	log zerolog.Logger

	tr  *transport.Transport
	ml  *link.MessageLayer
	pc  *pakctrl.Transaction
	b5  *bmp5.BMP5

	tables []*tdf.Table
	w      *writer.TOA5Writer
}

// runSession performs one full handshake-collect-disconnect cycle
// over an already-open transport. The caller (Orchestrator) owns the
// transport's lifetime across retries — SetTimeout escalation on a
// failed session reuses the same physical connection, only the
// protocol-level session state (hand shake, transaction counters) is
// rebuilt from scratch. runSession returns a plain error on any
// failure, never retrying internally except for the single
// per-table InvalidTDF refetch the error table calls for.
func runSession(tr *transport.Transport, cfg *config.Config, log zerolog.Logger) error {
	s := newSession(tr, cfg, log)
	defer s.teardown()

	if err := s.connect(); err != nil {
		return err
	}
	if err := s.syncClock(); err != nil {
		return err
	}
	identity, err := s.fetchIdentity()
	if err != nil {
		return err
	}
	if err := s.loadTables(); err != nil {
		return err
	}

	s.w = writer.New(cfg.Data.WorkingPath, identity, fileSpans(cfg), log)

	return s.collectAll()
}

func fileSpans(cfg *config.Config) map[string]int64 {
	m := make(map[string]int64, len(cfg.Data.CollectTables))
	for _, t := range cfg.Data.CollectTables {
		m[t.Name] = int64(t.FileSpanSecs)
	}
	return m
}

func newSession(tr *transport.Transport, cfg *config.Config, log zerolog.Logger) *session {
	self := link.Address{PhysAddr: link.LocalAddress, NodeID: link.LocalAddress}
	peer := link.Address{
		PhysAddr:     uint16(cfg.PakBus.DstPakBusID),
		NodeID:       uint16(cfg.PakBus.DstNodePakBusID),
		SecurityCode: cfg.PakBus.SecurityCode,
	}
	ml := link.New(framer.New(tr), self, peer, log)

	return &session{
		cfg: cfg,
		log: log,
		tr:  tr,
		ml:  ml,
		pc:  pakctrl.New(ml, log, nil),
		b5:  bmp5.New(ml, log, cfg.PakBus.SecurityCode),
	}
}

// connect wakes the logger, rings the link and runs a Hello.
func (s *session) connect() error {
	if err := s.ml.InitComm(); err != nil {
		return perr.IoErr{Cause: err}
	}
	if err := s.ml.Handshake(link.HandshakeRing); err != nil {
		return err
	}
	if _, err := s.pc.Hello(); err != nil {
		return err
	}
	return nil
}

// syncClock queries the logger's clock and, when the skew exceeds
// MaxTimeOffset, attempts a clock-set. A failed set is session-fatal
// per spec.md §4.8.
func (s *session) syncClock() error {
	loggerNow, err := s.b5.Clock(0, 0)
	if err != nil {
		return err
	}

	localNow := pbtime.FromTime(time.Now())
	skew := localNow.Sec - loggerNow.Sec
	if skew < 0 {
		skew = -skew
	}
	if time.Duration(skew)*time.Second <= MaxTimeOffset {
		return nil
	}

	s.log.Warn().Int64("skew_secs", skew).Msg("collector: logger clock skew exceeds tolerance, setting clock")
	if _, err := s.b5.Clock(int32(localNow.Sec-loggerNow.Sec), 0); err != nil {
		return fmt.Errorf("collector: fatal clock-set failure: %w", err)
	}
	return nil
}

func (s *session) fetchIdentity() (writer.Identity, error) {
	stats, err := s.b5.GetProgStats()
	if err != nil {
		return writer.Identity{}, err
	}
	return writer.Identity{
		StationName: s.cfg.StationName,
		LoggerType:  s.cfg.Logger,
		SerialNbr:   stats.Serial,
		OSVersion:   stats.OSVersion,
		ProgName:    stats.ProgName,
		ProgSig:     stats.ProgSig,
	}, nil
}

// loadTables fetches (or reuses a cached) Table Definition File, and
// binds each configured collect_table entry to its parsed Table,
// loading that table's persisted cursor. A configured table absent
// from the TDF is an InvalidArgument: it is skipped and the rest of
// the session proceeds.
func (s *session) loadTables() error {
	all, err := s.fetchOrLoadTDF(false)
	if err != nil {
		return err
	}

	byName := make(map[string]*tdf.Table, len(all))
	for _, t := range all {
		byName[t.Name] = t
	}

	for _, wanted := range s.cfg.Data.CollectTables {
		t, ok := byName[wanted.Name]
		if !ok {
			s.log.Warn().Str("table", wanted.Name).Msg("collector: configured table not present in TDF, skipping")
			continue
		}
		if err := cursor.Load(s.cfg.Data.WorkingPath, t); err != nil {
			return perr.IoErr{Cause: err}
		}
		s.tables = append(s.tables, t)
	}
	return nil
}

// fetchOrLoadTDF returns the cached tdf.dat when present and force is
// false, otherwise re-fetches it from the logger via FileUpload and
// refreshes the on-disk cache and its XML dump.
func (s *session) fetchOrLoadTDF(force bool) ([]*tdf.Table, error) {
	cachePath := filepath.Join(s.cfg.Data.WorkingPath, ".working", "tdf.dat")

	if !force {
		if data, err := os.ReadFile(cachePath); err == nil {
			if tables, err := tdf.Parse(data); err == nil {
				return tables, nil
			}
			s.log.Warn().Msg("collector: cached TDF failed to parse, refetching")
		}
	}

	data, err := s.b5.FetchTDF("CPU:Def.TDF")
	if err != nil {
		return nil, err
	}
	tables, err := tdf.Parse(data)
	if err != nil {
		return nil, perr.ParseErr{Reason: err.Error()}
	}

	if err := os.MkdirAll(filepath.Dir(cachePath), 0o755); err != nil {
		return nil, perr.IoErr{Cause: err}
	}
	if err := os.WriteFile(cachePath, data, 0o644); err != nil {
		return nil, perr.IoErr{Cause: err}
	}
	if err := dumpTDFXML(filepath.Join(s.cfg.Data.WorkingPath, ".working", "tdf.xml"), tables); err != nil {
		s.log.Warn().Err(err).Msg("collector: failed to write tdf.xml dump")
	}

	return tables, nil
}

// collectAll runs CollectData over every bound table, saving the
// cursor after each one. An InvalidTDF on a table triggers exactly
// one refetch-and-retry for that table; a second InvalidTDF is fatal
// for that table only, and the session continues with the rest.
func (s *session) collectAll() error {
	for i, t := range s.tables {
		tableLog := s.log.With().Str("table", t.Name).Logger()
		err := s.b5.CollectData(t, s.w)

		var invalidTDF perr.InvalidTDFErr
		if errors.As(err, &invalidTDF) {
			tableLog.Warn().Msg("collector: invalid TDF reported, refetching and retrying once")
			refetched, refetchErr := s.fetchOrLoadTDF(true)
			if refetchErr != nil {
				return refetchErr
			}

			next := findTable(refetched, t.Name)
			if next == nil {
				tableLog.Error().Msg("collector: table no longer present in refetched TDF, abandoning this table for this session")
				continue
			}
			carryCursor(t, next)
			t = next
			s.tables[i] = t

			err = s.b5.CollectData(t, s.w)
			if errors.As(err, &invalidTDF) {
				tableLog.Error().Msg("collector: invalid TDF persists after refetch, abandoning this table for this session")
				continue
			}
		}

		if err != nil {
			var ioErr perr.IoErr
			if errors.As(err, &ioErr) {
				return err // session-fatal
			}
			tableLog.Error().Err(err).Msg("collector: collection failed for table")
			continue
		}

		if err := cursor.Save(s.cfg.Data.WorkingPath, t); err != nil {
			tableLog.Error().Err(err).Msg("collector: failed to persist cursor")
		}
	}
	return nil
}

// findTable returns the table named name within tables, or nil.
func findTable(tables []*tdf.Table, name string) *tdf.Table {
	for _, t := range tables {
		if t.Name == name {
			return t
		}
	}
	return nil
}

// carryCursor copies the live collection progress from old onto next
// after a TDF refetch rebinds a table to a freshly parsed *tdf.Table,
// so the retry resumes where old left off instead of re-reading from
// record zero.
func carryCursor(old, next *tdf.Table) {
	next.NextRecord = old.NextRecord
	next.LastRecordTime = old.LastRecordTime
	next.NewFileTime = old.NewFileTime
	next.FirstSampleInFile = old.FirstSampleInFile
}

// teardown sends the Finished handshake and PakCtrl Bye. The physical
// transport is owned by the Orchestrator across retries and is not
// closed here. Every step is best-effort: a teardown failure must
// never mask the session's real outcome, which the caller already
// captured before teardown ran.
func (s *session) teardown() {
	if s.ml == nil {
		return
	}
	if err := s.ml.Handshake(link.HandshakeFinished); err != nil {
		s.log.Warn().Err(err).Msg("collector: finished handshake failed during teardown")
	}
	if s.pc != nil {
		s.pc.Bye()
	}
}
