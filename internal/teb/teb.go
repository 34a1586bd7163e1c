// Package teb implements the Contributor Adapter (C5): the thin shim
// between the Matcher and the downstream event-builder contributor. It
// copies a completed datagram's header into a contributor-owned slot
// obtained by pebble index, optionally runs a trigger-primitive plug-in
// over the source payload, and hands the slot off. The adapter never
// buffers: the contributor is the pipeline's single point of
// backpressure.
package teb

import (
	"fmt"

	"github.com/gadorlhiac/pvdrp/internal/xtc"
)

// Slot is a contributor-owned destination for one completed datagram,
// obtained via Fetch. Writing past Capacity is a caller bug; Adapter
// checks the payload length against Capacity before writing and returns
// an error instead.
type Slot interface {
	Write(hdr xtc.Header, payload []byte, damage xtc.Damage) error
	Capacity() int
}

// Contributor is the external event-builder collaborator: it hands out a
// slot for a given pebble index and accepts the finished slot. Both calls
// may block under backpressure; neither call originates from more than
// one goroutine at a time in this pipeline (the Matcher is single-
// threaded), so Contributor implementations need no internal locking on
// the Adapter's account.
type Contributor interface {
	Fetch(pebbleIndex uint32) (Slot, error)
	Post(pebbleIndex uint32, slot Slot) error
	Tick()
}

// TriggerPrimitive produces a small result XTC from an L1Accept's source
// payload. It is an optional plug-in point; a nil TriggerPrimitive on
// Adapter means no result XTC is appended.
type TriggerPrimitive interface {
	Compute(sourcePayload []byte) ([]byte, error)
}

// Adapter is the C5 Contributor Adapter. It satisfies match.Contributor.
type Adapter struct {
	contributor Contributor
	trigger     TriggerPrimitive
}

// New creates an Adapter over contributor. trigger may be nil.
func New(contributor Contributor, trigger TriggerPrimitive) *Adapter {
	return &Adapter{contributor: contributor, trigger: trigger}
}

// Send implements match.Contributor: fetch a slot for pebbleIndex, run
// the trigger-primitive plug-in (L1Accept only) to append a small result
// XTC, write the header and payload, and post the slot.
func (a *Adapter) Send(pebbleIndex uint32, hdr xtc.Header, payload []byte, damage xtc.Damage) error {
	slot, err := a.contributor.Fetch(pebbleIndex)
	if err != nil {
		return fmt.Errorf("teb: fetch slot for pebble %d: %w", pebbleIndex, err)
	}

	out := payload
	if hdr.Service == xtc.L1Accept && a.trigger != nil {
		result, err := a.trigger.Compute(payload)
		if err != nil {
			return fmt.Errorf("teb: trigger primitive for pebble %d: %w", pebbleIndex, err)
		}
		out = append(append([]byte(nil), payload...), result...)
	}

	if len(out) > slot.Capacity() {
		return fmt.Errorf("teb: datagram for pebble %d is %d bytes, exceeds slot capacity %d", pebbleIndex, len(out), slot.Capacity())
	}

	if err := slot.Write(hdr, out, damage); err != nil {
		return fmt.Errorf("teb: write slot for pebble %d: %w", pebbleIndex, err)
	}

	return a.contributor.Post(pebbleIndex, slot)
}

// Tick drives the contributor's own timeout housekeeping once per idle
// Matcher pass.
func (a *Adapter) Tick() { a.contributor.Tick() }
