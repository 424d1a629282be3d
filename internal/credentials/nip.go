package credentials

import "github.com/rezonia/ksef-connector/internal/model"

var nipWeights = [9]int{6, 5, 7, 2, 3, 4, 5, 6, 7}

// ValidateNIP checks that nip is exactly 10 ASCII digits
func ValidateNIP(nip string) error {
	if len(nip) != 10 {
		return model.NewPreconditionError("nip", nip, "length", "must be exactly 10 digits")
	}
	for _, r := range nip {
		if r < '0' || r > '9' {
			return model.NewPreconditionError("nip", nip, "digits", "must contain digits only")
		}
	}
	return nil
}

// NIPChecksumValid reports whether the tenth digit of nip matches the
// weighted mod-11 checksum of the first nine
func NIPChecksumValid(nip string) bool {
	if ValidateNIP(nip) != nil {
		return false
	}
	sum := 0
	for i, w := range nipWeights {
		sum += int(nip[i]-'0') * w
	}
	check := sum % 11
	return check != 10 && check == int(nip[9]-'0')
}
