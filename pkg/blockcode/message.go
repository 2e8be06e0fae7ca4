package blockcode

import (
	"github.com/pkg/errors"
)

// ErrWideCodeword is returned by the byte-oriented message helpers when the
// code does not fit one codeword per byte.
var ErrWideCodeword = errors.New("codeword does not fit in a byte")

// EncodeMessage packetizes msg into K-bit symbols and returns one codeword
// per byte, right aligned.
func (c *Code) EncodeMessage(msg []byte) ([]byte, error) {
	if c.n > 8 {
		return nil, ErrWideCodeword
	}
	if c.k > CharBits {
		return nil, errors.Errorf("symbol width %d exceeds %d", c.k, CharBits)
	}
	symbols := Packetize(msg, c.k)
	out := make([]byte, len(symbols))
	for i, s := range symbols {
		out[i] = byte(c.Encode(s))
	}
	return out, nil
}

// SymbolReport is the decoding outcome of one codeword.
type SymbolReport struct {
	Index    int     `json:"index"`
	Received byte    `json:"received"`
	Symbol   Word    `json:"symbol"`
	Outcome  Outcome `json:"outcome"`
	Position int     `json:"position"`
}

// DecodeReport is the result of DecodeMessage.
type DecodeReport struct {
	Message       []byte         `json:"message"`
	Symbols       []SymbolReport `json:"symbols"`
	Corrected     int            `json:"corrected"`
	Uncorrectable int            `json:"uncorrectable"`
}

// Lost returns the indexes of symbols that could not be recovered.
func (r *DecodeReport) Lost() []int {
	var out []int
	for _, s := range r.Symbols {
		if s.Outcome == Uncorrectable {
			out = append(out, s.Index)
		}
	}
	return out
}

// DecodeMessage corrects and decodes codewords produced by EncodeMessage and
// rebuilds msgLen characters. An uncorrectable codeword is zeroed and counted;
// decoding always continues with the next codeword.
func (c *Code) DecodeMessage(codewords []byte, msgLen int) (*DecodeReport, error) {
	if c.n > 8 {
		return nil, ErrWideCodeword
	}
	report := &DecodeReport{Symbols: make([]SymbolReport, len(codewords))}
	symbols := make([]Word, len(codewords))
	for i, cw := range codewords {
		in := c.Inspect(Word(cw))
		switch in.Outcome {
		case Corrected:
			report.Corrected++
			log.Debugf("symbol %d: corrected bit %d (syndrome %s)", i, in.Position, in.Syndrome.Format(c.n-c.k))
		case Uncorrectable:
			report.Uncorrectable++
			log.Warnf("symbol %d: uncorrectable codeword %s", i, Word(cw).Format(c.n))
		}
		symbols[i] = c.Decode(in.Codeword)
		report.Symbols[i] = SymbolReport{
			Index:    i,
			Received: cw,
			Symbol:   symbols[i],
			Outcome:  in.Outcome,
			Position: in.Position,
		}
	}
	report.Message = Reassemble(symbols, c.k, msgLen)
	return report, nil
}
