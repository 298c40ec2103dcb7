package modelconfig

import "testing"

func TestSanitizeNonFiniteJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "no tokens",
			in:   `{"hidden_size":4096}`,
			want: `{"hidden_size":4096}`,
		},
		{
			name: "infinity in array",
			in:   `{"a":[0,Infinity,1]}`,
			want: `{"a":[0,0,1]}`,
		},
		{
			name: "negative infinity",
			in:   `{"a": -Infinity}`,
			want: `{"a": 0}`,
		},
		{
			name: "nan",
			in:   `{"a":NaN}`,
			want: `{"a":0}`,
		},
		{
			name: "strings untouched",
			in:   `{"a":"Infinity -Infinity NaN \"NaN\"","b":Infinity}`,
			want: `{"a":"Infinity -Infinity NaN \"NaN\"","b":0}`,
		},
		{
			name: "identifier untouched",
			in:   `{"a":InfinityValue}`,
			want: `{"a":InfinityValue}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := string(sanitizeNonFiniteJSON([]byte(tt.in))); got != tt.want {
				t.Fatalf("got %s, want %s", got, tt.want)
			}
		})
	}
}
