package loader

import (
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/OpenPSG/edf"

	"github.com/psylab/epochsync/internal/clocksync"
)

// ReadTriggersEDF recovers trigger pulses from a status channel of an
// EDF/EDF+ recording. A pulse is emitted whenever the channel value
// changes to a nonzero code; its time is the sample offset from the
// start of the recording in seconds and its code the rounded physical
// value. signalLabel selects the channel (case-insensitive, trimmed);
// when empty, the first channel whose label contains "trig" or
// "status" is used.
func ReadTriggersEDF(r io.ReadSeeker, signalLabel string) ([]clocksync.TriggerRecord, error) {
	labels, samplesPerRecord, recordSeconds, err := peekEDFHeader(r)
	if err != nil {
		return nil, err
	}

	idx := -1
	for i, label := range labels {
		if signalLabel != "" {
			if strings.EqualFold(strings.TrimSpace(label), strings.TrimSpace(signalLabel)) {
				idx = i
				break
			}
			continue
		}
		l := strings.ToLower(label)
		if strings.Contains(l, "trig") || strings.Contains(l, "status") {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, fmt.Errorf("edf: no trigger channel found (labels: %s)", strings.Join(labels, ", "))
	}
	if recordSeconds <= 0 || samplesPerRecord[idx] <= 0 {
		return nil, fmt.Errorf("edf: channel %q has no sampling rate", labels[idx])
	}
	rate := float64(samplesPerRecord[idx]) / recordSeconds

	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("edf: rewind: %w", err)
	}
	er, err := edf.Open(r)
	if err != nil {
		return nil, fmt.Errorf("edf: open: %w", err)
	}
	sr, err := er.Signal(idx)
	if err != nil {
		return nil, fmt.Errorf("edf: signal %d: %w", idx, err)
	}

	var triggers []clocksync.TriggerRecord
	buf := make([]float64, 4096)
	sample := 0
	prev := 0
	for {
		n, err := sr.Read(buf)
		for i := 0; i < n; i++ {
			code := int(math.Round(buf[i]))
			if code != 0 && code != prev {
				triggers = append(triggers, clocksync.TriggerRecord{
					Time: float64(sample+i) / rate,
					Code: strconv.Itoa(code),
				})
			}
			prev = code
		}
		sample += n
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("edf: read samples: %w", err)
		}
	}
	return triggers, nil
}

// peekEDFHeader reads the fixed-width EDF header directly: the library
// parses it on Open but does not expose the result, and the channel
// labels and sampling rate are needed before choosing a signal.
func peekEDFHeader(r io.ReadSeeker) (labels []string, samplesPerRecord []int, recordSeconds float64, err error) {
	if _, err = r.Seek(0, io.SeekStart); err != nil {
		return nil, nil, 0, fmt.Errorf("edf: seek header: %w", err)
	}

	fixed := make([]byte, 256)
	if _, err = io.ReadFull(r, fixed); err != nil {
		return nil, nil, 0, fmt.Errorf("edf: read header: %w", err)
	}

	recordSeconds, err = strconv.ParseFloat(strings.TrimSpace(string(fixed[244:252])), 64)
	if err != nil {
		return nil, nil, 0, fmt.Errorf("edf: parse record duration: %w", err)
	}
	ns, err := strconv.Atoi(strings.TrimSpace(string(fixed[252:256])))
	if err != nil || ns <= 0 {
		return nil, nil, 0, fmt.Errorf("edf: parse signal count: %w", err)
	}

	// Per-signal header block: label 16, transducer 80, dimension 8,
	// physical min/max 8+8, digital min/max 8+8, prefiltering 80,
	// samples per record 8, reserved 32.
	block := make([]byte, ns*256)
	if _, err = io.ReadFull(r, block); err != nil {
		return nil, nil, 0, fmt.Errorf("edf: read signal headers: %w", err)
	}

	labels = make([]string, ns)
	for i := 0; i < ns; i++ {
		labels[i] = strings.TrimSpace(string(block[i*16 : (i+1)*16]))
	}

	samplesOff := ns * (16 + 80 + 8 + 8 + 8 + 8 + 8 + 80)
	samplesPerRecord = make([]int, ns)
	for i := 0; i < ns; i++ {
		field := block[samplesOff+i*8 : samplesOff+(i+1)*8]
		n, err := strconv.Atoi(strings.TrimSpace(string(field)))
		if err != nil {
			return nil, nil, 0, fmt.Errorf("edf: parse samples per record: %w", err)
		}
		samplesPerRecord[i] = n
	}
	return labels, samplesPerRecord, recordSeconds, nil
}
