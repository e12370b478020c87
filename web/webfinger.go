package web

import (
	"encoding/json"
	"fmt"

	"github.com/deemkeen/stegodon/db"
	"github.com/deemkeen/stegodon/util"
)

// GetWebfinger resolves a bare username (the "acct:" prefix and
// "@domain" suffix already stripped by the caller) to a WebFinger JRD,
// per spec.md §4.1/§6's account-discovery step.
func GetWebfinger(username string, conf *util.AppConfig) (error, string) {
	err, acc := db.GetDB().ReadAccByUsername(username)
	if err != nil {
		return err, GetWebFingerNotFound()
	}

	actorURI := fmt.Sprintf("https://%s/users/%s", conf.Conf.SslDomain, acc.Username)
	profileURI := fmt.Sprintf("https://%s/@%s", conf.Conf.SslDomain, acc.Username)

	jrd := map[string]any{
		"subject": fmt.Sprintf("acct:%s@%s", acc.Username, conf.Conf.SslDomain),
		"aliases": []string{actorURI, profileURI},
		"links": []map[string]string{
			{
				"rel":  "http://webfinger.net/rel/profile-page",
				"type": "text/html",
				"href": profileURI,
			},
			{
				"rel":  "self",
				"type": "application/activity+json",
				"href": actorURI,
			},
		},
	}

	jsonBytes, err := json.Marshal(jrd)
	if err != nil {
		return err, GetWebFingerNotFound()
	}

	return nil, string(jsonBytes)
}

// GetWebFingerNotFound returns the JRD-shaped error body for an unknown
// resource, so callers get valid JSON rather than an empty 404 body.
func GetWebFingerNotFound() string {
	return `{"error": "resource not found"}`
}
