package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

func (p JobPayload) Value() (driver.Value, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func (p *JobPayload) Scan(value interface{}) error {
	if value == nil {
		*p = JobPayload{}
		return nil
	}

	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported payload type %T", value)
	}

	if len(data) == 0 || string(data) == "null" {
		*p = JobPayload{}
		return nil
	}

	return json.Unmarshal(data, p)
}
