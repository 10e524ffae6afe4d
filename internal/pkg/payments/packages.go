package payments

import (
	"errors"
	"strings"
)

// Package is a purchasable credit bundle. The table is static; the payment
// processor references packages by id in checkout metadata.
type Package struct {
	ID      string
	Credits int64
}

var ErrUnknownPackage = errors.New("unknown credit package")

var packages = map[string]Package{
	"starter": {ID: "starter", Credits: 30},
	"studio":  {ID: "studio", Credits: 80},
	"pro":     {ID: "pro", Credits: 200},
}

// LookupPackage resolves a package id from checkout metadata to its credit
// amount.
func LookupPackage(packageID string) (Package, error) {
	pkg, ok := packages[strings.ToLower(strings.TrimSpace(packageID))]
	if !ok {
		return Package{}, ErrUnknownPackage
	}
	return pkg, nil
}
