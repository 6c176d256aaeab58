package model

import (
	"bytes"
	"time"
)

// LocalTime 在管理端 JSON 中以 "YYYY-MM-DD HH:MM:SS" 输出，零值输出 null。
type LocalTime time.Time

const localTimeLayout = "2006-01-02 15:04:05"

func (t LocalTime) MarshalJSON() ([]byte, error) {
	tt := time.Time(t)
	if tt.IsZero() {
		return []byte("null"), nil
	}
	b := make([]byte, 0, len(localTimeLayout)+2)
	b = append(b, '"')
	b = tt.AppendFormat(b, localTimeLayout)
	return append(b, '"'), nil
}

func (t *LocalTime) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		*t = LocalTime(time.Time{})
		return nil
	}
	parsed, err := time.ParseInLocation(`"`+localTimeLayout+`"`, string(data), time.Local)
	if err != nil {
		return err
	}
	*t = LocalTime(parsed)
	return nil
}
