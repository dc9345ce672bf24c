package bus

import "testing"

func TestDecodeTrigger(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		want    string
		wantErr bool
	}{
		{name: "valid", data: `{"monitor_id":"mon-1"}`, want: "mon-1"},
		{name: "extra fields", data: `{"monitor_id":"mon-2","source":"cron"}`, want: "mon-2"},
		{name: "missing id", data: `{}`, wantErr: true},
		{name: "not json", data: `mon-1`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeTrigger([]byte(tt.data))
			if (err != nil) != tt.wantErr {
				t.Errorf("DecodeTrigger() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if got.MonitorID != tt.want {
				t.Errorf("DecodeTrigger() = %q, want %q", got.MonitorID, tt.want)
			}
		})
	}
}
