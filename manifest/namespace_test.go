package manifest

import "testing"

func TestToPascalCase(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"shop", "Shop"},
		{"order-service", "OrderService"},
		{"order_service", "OrderService"},
		{"orderService", "OrderService"},
		{"UPPER", "Upper"},
		{"a", "A"},
		{"", ""},
		{"_leading", "Leading"},
	}

	for _, tc := range tests {
		got := ToPascalCase(tc.input)
		if got != tc.want {
			t.Errorf("ToPascalCase(%q) = %q, want %q", tc.input, got, tc.want)
		}
	}
}

func TestIsReservedNamespace(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"Array", true},
		{"Object", true},
		{"OrderedCollection", true},
		{"Mender", true},
		{"Mender::Extra", true},
		{"Shop", false},
		{"Shop::Array", false},
		{"Array::Stuff", true},
	}

	for _, tc := range tests {
		got := IsReservedNamespace(tc.name)
		if got != tc.want {
			t.Errorf("IsReservedNamespace(%q) = %v, want %v", tc.name, got, tc.want)
		}
	}
}
