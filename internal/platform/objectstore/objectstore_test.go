package objectstore

import "testing"

func TestConfigValidate(t *testing.T) {
	cfg := Config{
		Endpoint:      "localhost:9000",
		AccessKey:     "key",
		SecretKey:     "secret",
		Region:        "us-east-1",
		BucketModules: "modules",
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() err=%v", err)
	}

	bad := cfg
	bad.Endpoint = "http://localhost:9000"
	if err := bad.Validate(); err == nil {
		t.Fatalf("Validate() expected error for scheme in endpoint")
	}

	bad = cfg
	bad.BucketModules = ""
	if err := bad.Validate(); err == nil {
		t.Fatalf("Validate() expected error for missing bucket")
	}
}

func TestNewMinioStoreRequiresClient(t *testing.T) {
	if _, err := NewMinioStore(nil); err == nil {
		t.Fatalf("NewMinioStore(nil) expected error")
	}
}
