// Package signing implements the document signing sub-workflow. Each document
// moves independently through Unsigned -> SignaturePending -> Signed; the
// desk reports every new signature through its callback exactly once.
package signing

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Desk tracks signing state for a fixed document set. It is not safe for
// concurrent use; drive it from the workflow's event loop.
type Desk struct {
	docs     []Document
	index    map[string]int
	states   map[string]DocState
	events   map[string]SignatureEvent
	order    []string
	onSigned func(SignatureEvent)
	receipts *ReceiptIssuer
	now      func() time.Time
	idGen    func() string
}

// NewDesk builds a desk over docs. onSigned may be nil.
func NewDesk(docs []Document, onSigned func(SignatureEvent)) (*Desk, error) {
	if len(docs) == 0 {
		return nil, fmt.Errorf("signing: document catalog is empty")
	}

	d := &Desk{
		docs:     make([]Document, 0, len(docs)),
		index:    make(map[string]int, len(docs)),
		states:   make(map[string]DocState, len(docs)),
		events:   make(map[string]SignatureEvent, len(docs)),
		onSigned: onSigned,
		now:      time.Now,
		idGen:    func() string { return uuid.NewString() },
	}
	for _, doc := range docs {
		if strings.TrimSpace(doc.ID) == "" {
			return nil, fmt.Errorf("signing: document missing id")
		}
		if _, dup := d.index[doc.ID]; dup {
			return nil, fmt.Errorf("signing: duplicate document %s", doc.ID)
		}
		d.index[doc.ID] = len(d.docs)
		d.docs = append(d.docs, doc)
		d.states[doc.ID] = StateUnsigned
	}
	return d, nil
}

// WithClock overrides the timestamp source.
func (d *Desk) WithClock(now func() time.Time) *Desk {
	d.now = now
	return d
}

// WithIDGenerator overrides the signature event id source.
func (d *Desk) WithIDGenerator(gen func() string) *Desk {
	d.idGen = gen
	return d
}

// WithReceipts attaches a receipt to every new signature event.
func (d *Desk) WithReceipts(issuer *ReceiptIssuer) *Desk {
	d.receipts = issuer
	return d
}

// Documents returns the catalog in display order.
func (d *Desk) Documents() []Document {
	out := make([]Document, len(d.docs))
	copy(out, d.docs)
	return out
}

// State returns the signing state of a document.
func (d *Desk) State(id string) (DocState, error) {
	if _, err := d.lookup(id); err != nil {
		return "", err
	}
	return d.states[id], nil
}

// Begin opens the signature step for a document. Beginning a pending or
// already signed document has no effect.
func (d *Desk) Begin(id string) error {
	if _, err := d.lookup(id); err != nil {
		return err
	}
	if d.states[id] == StateUnsigned {
		d.states[id] = StateSignaturePending
	}
	return nil
}

// Abandon closes a pending signature step without signing.
func (d *Desk) Abandon(id string) error {
	if _, err := d.lookup(id); err != nil {
		return err
	}
	if d.states[id] == StateSignaturePending {
		d.states[id] = StateUnsigned
	}
	return nil
}

// Confirm signs a pending document. Documents that require a signature need a
// non-blank signer name. Confirming an already signed document returns its
// original event.
func (d *Desk) Confirm(id, signerName string) (SignatureEvent, error) {
	doc, err := d.lookup(id)
	if err != nil {
		return SignatureEvent{}, err
	}

	switch d.states[id] {
	case StateSigned:
		return d.events[id], nil
	case StateUnsigned:
		return SignatureEvent{}, fmt.Errorf("%w: %s", ErrNotPending, id)
	}

	signer := strings.TrimSpace(signerName)
	if doc.RequiresSignature && signer == "" {
		return SignatureEvent{}, ErrSignerRequired
	}
	return d.sign(doc, signer)
}

// Acknowledge signs a document that needs no named signature in one step.
func (d *Desk) Acknowledge(id string) (SignatureEvent, error) {
	doc, err := d.lookup(id)
	if err != nil {
		return SignatureEvent{}, err
	}
	if d.states[id] == StateSigned {
		return d.events[id], nil
	}
	if doc.RequiresSignature {
		return SignatureEvent{}, fmt.Errorf("%w: %s", ErrSignatureRequired, id)
	}
	return d.sign(doc, "")
}

// Review returns a document with its state. It never changes state.
func (d *Desk) Review(id string) (Document, DocState, error) {
	doc, err := d.lookup(id)
	if err != nil {
		return Document{}, "", err
	}
	return doc, d.states[id], nil
}

// SignedIDs returns signed document ids in signing order.
func (d *Desk) SignedIDs() []string {
	out := make([]string, len(d.order))
	copy(out, d.order)
	return out
}

// SignedCount returns the number of signed documents.
func (d *Desk) SignedCount() int {
	return len(d.order)
}

// Events returns signature events in signing order.
func (d *Desk) Events() []SignatureEvent {
	out := make([]SignatureEvent, 0, len(d.order))
	for _, id := range d.order {
		out = append(out, d.events[id])
	}
	return out
}

func (d *Desk) lookup(id string) (Document, error) {
	idx, ok := d.index[id]
	if !ok {
		return Document{}, fmt.Errorf("%w: %s", ErrUnknownDocument, id)
	}
	return d.docs[idx], nil
}

func (d *Desk) sign(doc Document, signer string) (SignatureEvent, error) {
	ev := SignatureEvent{
		ID:         d.idGen(),
		DocumentID: doc.ID,
		SignerName: signer,
		Digest:     Digest(doc),
		Timestamp:  d.now().UTC(),
	}
	if d.receipts != nil {
		receipt, err := d.receipts.Issue(ev)
		if err != nil {
			return SignatureEvent{}, err
		}
		ev.Receipt = receipt
	}

	d.states[doc.ID] = StateSigned
	d.events[doc.ID] = ev
	d.order = append(d.order, doc.ID)
	if d.onSigned != nil {
		d.onSigned(ev)
	}
	return ev, nil
}
