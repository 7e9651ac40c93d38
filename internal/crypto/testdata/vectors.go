package testdata

// TestVector contains known key derivation inputs.
type TestVector struct {
	Name       string
	Secret     string
	Salt       string // Base64
	Iterations int
	KDF        string
	Plaintext  string // JSON
}

// Vectors contains test vectors for crypto operations.
var Vectors = []TestVector{
	{
		Name:       "Basic pbkdf2",
		Secret:     "correct horse battery staple",
		Salt:       "dGVzdHNhbHQxMjM0NTY3ODkwMTIzNDU2Nzg5MDEyMzQ1Ng==", // 32 bytes
		Iterations: 100000,
		Plaintext:  `{"revenue":100,"currency":"USD"}`,
	},
	{
		Name:       "Unicode secret",
		Secret:     "пароль-секрет-123",
		Salt:       "YW5vdGhlcnNhbHQxMjM0NTY3ODkwMTIzNDU2Nzg5MDEyMw==",
		Iterations: 1000,
		Plaintext:  `[{"name":"Zoë","amount":250.5},{"name":"李","amount":10}]`,
	},
	{
		Name:      "Scrypt",
		Secret:    "legacy-secret",
		Salt:      "c2NyeXB0LXNhbHQtMTIzNDU2Nzg5MA==",
		KDF:       "scrypt",
		Plaintext: `"top donor"`,
	},
}
