package harvest

import (
	"net/url"
)

// FixupURL injects the entity id into the target URL's query string when the
// export row left the parameter empty. Malformed URLs are returned unchanged;
// the driver will report the navigation failure with full context.
func FixupURL(raw, entityID, param string) string {
	if raw == "" || entityID == "" || param == "" {
		return raw
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	query := parsed.Query()
	if query.Get(param) != "" {
		return raw
	}
	query.Set(param, entityID)
	parsed.RawQuery = query.Encode()
	return parsed.String()
}
