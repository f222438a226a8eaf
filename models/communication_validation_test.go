package models

import "testing"

func TestValidateVendorContact(t *testing.T) {
	cases := []struct {
		name     string
		supplier Supplier
		method   CommunicationMethod
		wantErr  string
	}{
		{"email ok", Supplier{Email: "orders@vendor.example"}, CommunicationMethodEmail, ""},
		{"email missing", Supplier{}, CommunicationMethodEmail, "supplier has no valid email address"},
		{"email malformed", Supplier{Email: "not-an-email"}, CommunicationMethodEmail, "supplier has no valid email address"},
		{"phone ok", Supplier{Phone: "09212345678"}, CommunicationMethodPhone, ""},
		{"phone falls back to mobile", Supplier{Mobile: "09212345679"}, CommunicationMethodPhone, ""},
		{"phone missing", Supplier{}, CommunicationMethodPhone, "supplier has no phone number"},
		{"phone invalid", Supplier{Phone: "12"}, CommunicationMethodWhatsApp, "supplier phone number is invalid"},
		{"whatsapp uses phone fields", Supplier{Phone: "09212345670"}, CommunicationMethodWhatsApp, ""},
		{"unknown method", Supplier{Email: "orders@vendor.example"}, CommunicationMethod("Fax"), "invalid communication method"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := validateVendorContact(&tc.supplier, tc.method)
			if tc.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || err.Error() != tc.wantErr {
				t.Fatalf("validateVendorContact = %v, want %q", err, tc.wantErr)
			}
		})
	}
}
