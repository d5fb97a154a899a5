// Package pakctrl implements the PakCtrl protocol's two
// transactions: HelloTransaction (link establishment with hop-metric
// escalation) and Bye (graceful session teardown).
package pakctrl

import (
	"time"

	"github.com/csilogger/pbcollect/internal/pakbus/link"
	"github.com/csilogger/pbcollect/internal/perr"
	"github.com/rs/zerolog"
)

// hopMetricSleep is the back-off table HelloTransaction walks while
// escalating hop_metric from 1 to 5.
var hopMetricSleep = [5]time.Duration{
	1 * time.Second,
	5 * time.Second,
	10 * time.Second,
	20 * time.Second,
	60 * time.Second,
}

const msgTypeHello = 0x09
const msgTypeHelloReply = 0x89
const msgTypeBye = 0x0D

// Sleep is injected so tests can run the hop-metric escalation
// without actually sleeping; production code passes time.Sleep.
type Sleep func(time.Duration)

// Transaction drives PakCtrl's Hello and Bye messages over a
// MessageLayer. tranNbr advances per call, one counter per session.
type Transaction struct {
	ml      *link.MessageLayer
	log     zerolog.Logger
	sleep   Sleep
	tranNbr byte
}

// New builds a Transaction. sleep may be nil, in which case
// time.Sleep is used.
func New(ml *link.MessageLayer, log zerolog.Logger, sleep Sleep) *Transaction {
	if sleep == nil {
		sleep = time.Sleep
	}
	return &Transaction{ml: ml, log: log, sleep: sleep}
}

func (t *Transaction) nextTran() byte {
	t.tranNbr++
	return t.tranNbr
}

// Hello drives hop_metric through 1..5, sending a Hello and sleeping
// the corresponding back-off before reading the reply. It returns
// the hop-metric byte the device echoed back (body[1] of the 0x89
// application body, byte 12 of the packet counting the leading sync
// byte); the collector's connect step discards it.
func (t *Transaction) Hello() (byte, error) {
	for hop := 1; hop <= 5; hop++ {
		tran := t.nextTran()
		body := []byte{0x00, byte(hop), 0x00, 0x3C}

		if err := t.ml.Send(t.ml.NewHeader(link.ProtoPakCtrl, msgTypeHello, tran), body); err != nil {
			return 0, perr.IoErr{Cause: err}
		}

		t.sleep(hopMetricSleep[hop-1])

		classified, err := t.ml.ReadClassified(msgTypeHelloReply, tran)
		if err != nil {
			return 0, err
		}
		for _, c := range classified {
			if c.Outcome == link.OutcomeMatch && len(c.Body) > 1 {
				return c.Body[1], nil
			}
		}
	}
	return 0, perr.HandshakeFailureErr{Reason: "no hop metric elicited a Hello reply"}
}

// Bye sends PakCtrl's empty-bodied 0x0D teardown message with
// LinkState Finished and ExpectMore 0x00.
// Communication errors are logged, never propagated: a failed Bye
// must not block session teardown.
func (t *Transaction) Bye() {
	tran := t.nextTran()
	h := t.ml.NewHeader(link.ProtoPakCtrl, msgTypeBye, tran)
	h.ExpectMore = 0x00
	err := t.ml.Send(h, nil)
	if err != nil {
		t.log.Warn().Err(err).Msg("pakctrl: Bye failed (ignored)")
	}
}
