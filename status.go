package main

import "errors"

type LockStatus int

const (
	NotLocked LockStatus = iota
	Locked
)

// parseLockStatus maps the modem's literal "Locked" to Locked. Anything else,
// including other capitalisations, is NotLocked.
func parseLockStatus(s string) LockStatus {
	if s == "Locked" {
		return Locked
	}
	return NotLocked
}

func (l LockStatus) Value() float64 {
	if l == Locked {
		return 1
	}
	return 0
}

type ChannelType string

const (
	Bonded ChannelType = "bonded"
	OFDM   ChannelType = "ofdm"
	OFDMA  ChannelType = "ofdma"
)

type Direction string

const (
	Downstream Direction = "downstream"
	Upstream   Direction = "upstream"
)

// DownstreamReadings are only reported for downstream channels.
type DownstreamReadings struct {
	SNRMER                 float64
	UnerroredCodewords     float64
	CorrectableCodewords   float64
	UncorrectableCodewords float64

	// OFDM only, not exported as a metric.
	ActiveSubcarrierRange string
}

type ChannelRecord struct {
	Channel     string
	LockStatus  LockStatus
	Modulation  string
	ChannelID   string
	FrequencyHz float64
	PowerDBmV   float64

	// Nil for upstream channels.
	Downstream *DownstreamReadings
}

// ChannelGroup holds the channels of one status table. Channels is keyed by
// the row's first cell; Order keeps first-seen row order.
type ChannelGroup struct {
	Type      ChannelType
	Direction Direction
	Channels  map[string]ChannelRecord
	Order     []string
}

func newChannelGroup(t ChannelType, d Direction) ChannelGroup {
	return ChannelGroup{
		Type:      t,
		Direction: d,
		Channels:  map[string]ChannelRecord{},
	}
}

// add stores rec, replacing an earlier row with the same channel key.
func (g *ChannelGroup) add(rec ChannelRecord) {
	if _, ok := g.Channels[rec.Channel]; !ok {
		g.Order = append(g.Order, rec.Channel)
	}
	g.Channels[rec.Channel] = rec
}

// Records returns the group's channels in row order.
func (g ChannelGroup) Records() []ChannelRecord {
	records := make([]ChannelRecord, 0, len(g.Order))
	for _, key := range g.Order {
		records = append(records, g.Channels[key])
	}
	return records
}

type ScrapeResult struct {
	DownstreamBonded ChannelGroup
	UpstreamBonded   ChannelGroup
	DownstreamOFDM   ChannelGroup
	UpstreamOFDMA    ChannelGroup
}

func (r *ScrapeResult) Groups() []ChannelGroup {
	return []ChannelGroup{r.DownstreamBonded, r.UpstreamBonded, r.DownstreamOFDM, r.UpstreamOFDMA}
}

// buildScrapeResult converts the raw tables of a status page into typed
// channel groups. It fails on the first cell that is not a valid number.
func buildScrapeResult(tables map[string][][]string) (*ScrapeResult, error) {
	result := &ScrapeResult{}
	for _, layout := range statusTables {
		group := newChannelGroup(layout.channelType, layout.direction)
		for i, row := range tables[layout.id] {
			rec, err := layout.record(row)
			if err != nil {
				var pe *ParseError
				if errors.As(err, &pe) {
					pe.Table = layout.id
					pe.Row = i
				}
				return nil, err
			}
			group.add(rec)
		}

		switch layout.id {
		case dsTableID:
			result.DownstreamBonded = group
		case usTableID:
			result.UpstreamBonded = group
		case dsOFDMTableID:
			result.DownstreamOFDM = group
		case usOFDMATableID:
			result.UpstreamOFDMA = group
		}
	}
	return result, nil
}

func (l tableLayout) record(row []string) (ChannelRecord, error) {
	var err error
	rec := ChannelRecord{
		Channel:    row[0],
		LockStatus: parseLockStatus(row[1]),
		Modulation: row[2],
		ChannelID:  row[3],
	}
	if rec.FrequencyHz, err = parseUnitValue("frequency", row[4], "Hz"); err != nil {
		return rec, err
	}
	if rec.PowerDBmV, err = parseUnitValue("power", row[5], "dBmV"); err != nil {
		return rec, err
	}
	if l.direction == Upstream {
		return rec, nil
	}

	ds := &DownstreamReadings{}
	if ds.SNRMER, err = parseUnitValue("snr_mer", row[6], "dB"); err != nil {
		return rec, err
	}
	codewords := row[7:10]
	if l.channelType == OFDM {
		ds.ActiveSubcarrierRange = row[7]
		codewords = row[8:11]
	}
	if ds.UnerroredCodewords, err = parseCount("unerrored_codewords", codewords[0]); err != nil {
		return rec, err
	}
	if ds.CorrectableCodewords, err = parseCount("correctable_codewords", codewords[1]); err != nil {
		return rec, err
	}
	if ds.UncorrectableCodewords, err = parseCount("uncorrectable_codewords", codewords[2]); err != nil {
		return rec, err
	}
	rec.Downstream = ds
	return rec, nil
}
