package tensor

import (
	"encoding/json"
	"fmt"
)

// wireMatrix is the JSON form used on the worker RPC surface.
type wireMatrix struct {
	Rows int       `json:"rows"`
	Cols int       `json:"cols"`
	Data []float64 `json:"data"`
}

// MarshalJSON encodes the matrix as {"rows":r,"cols":c,"data":[...]}.
func (m *Matrix) MarshalJSON() ([]byte, error) {
	rows, cols := m.Dims()
	// Copy so later in-place updates cannot race the encoder.
	data := make([]float64, rows*cols)
	copy(data, m.Data())
	return json.Marshal(wireMatrix{Rows: rows, Cols: cols, Data: data})
}

// UnmarshalJSON decodes the wire form produced by MarshalJSON.
func (m *Matrix) UnmarshalJSON(b []byte) error {
	var w wireMatrix
	if err := json.Unmarshal(b, &w); err != nil {
		return fmt.Errorf("tensor: decode matrix: %w", err)
	}
	decoded, err := New(w.Rows, w.Cols, w.Data)
	if err != nil {
		return err
	}
	m.d = decoded.d
	return nil
}
