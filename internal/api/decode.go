package api

import (
	"bytes"
	"encoding/json"
)

// merchantField accepts merchant_data as an object or as a one-element array.
type merchantField struct {
	MerchantRecord
}

func (m *merchantField) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '[' {
		var list []MerchantRecord
		if err := json.Unmarshal(b, &list); err != nil {
			return err
		}
		if len(list) > 0 {
			m.MerchantRecord = list[0]
		}
		return nil
	}
	if bytes.Equal(b, []byte("null")) {
		return nil
	}
	return json.Unmarshal(b, &m.MerchantRecord)
}
