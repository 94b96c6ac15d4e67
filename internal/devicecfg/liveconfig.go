package devicecfg

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
)

var ErrNotAnObject = errors.New("configuration document is not a JSON object")

// LiveConfig is the device configuration pushed by the server. Keys the
// agent does not know about are kept in Extra so they survive merges and
// round trips through the config file.
type LiveConfig struct {
	LogLevel           string
	AssignedToLocation *bool
	Reboot             bool
	Restart            bool
	Update             bool
	Autoupdate         bool
	Extra              map[string]json.RawMessage
}

func (c LiveConfig) AssignedToLocationOrDefault() bool {
	if c.AssignedToLocation == nil {
		return true
	}
	return *c.AssignedToLocation
}

// Merge applies a partial configuration document. Keys present in doc
// overwrite the current value and unknown keys are added to Extra. A
// known key holding the wrong JSON type is skipped; the rest of the
// document still applies. Only a document that is not an object fails.
func (c *LiveConfig) Merge(doc []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(doc, &fields); err != nil {
		return fmt.Errorf("%w: %v", ErrNotAnObject, err)
	}
	if fields == nil {
		return ErrNotAnObject
	}

	next := c.clone()
	for key, raw := range fields {
		var err error
		switch key {
		case "logLevel":
			err = json.Unmarshal(raw, &next.LogLevel)
		case "assignedToLocation":
			var v *bool
			if err = json.Unmarshal(raw, &v); err == nil {
				next.AssignedToLocation = v
			}
		case "reboot":
			err = unmarshalBool(raw, &next.Reboot)
		case "restart":
			err = unmarshalBool(raw, &next.Restart)
		case "update":
			err = unmarshalBool(raw, &next.Update)
		case "autoupdate":
			err = unmarshalBool(raw, &next.Autoupdate)
		default:
			if next.Extra == nil {
				next.Extra = make(map[string]json.RawMessage)
			}
			next.Extra[key] = append(json.RawMessage(nil), raw...)
		}
		if err != nil {
			log.Warn().Err(err).Str("key", key).RawJSON("value", raw).Msg("Skipping configuration field with unexpected type")
		}
	}
	*c = next
	return nil
}

// unmarshalBool leaves dst untouched when raw is not a boolean.
func unmarshalBool(raw json.RawMessage, dst *bool) error {
	var v bool
	if err := json.Unmarshal(raw, &v); err != nil {
		return err
	}
	*dst = v
	return nil
}

func (c LiveConfig) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(c.Extra)+6)
	for k, v := range c.Extra {
		out[k] = v
	}
	if c.LogLevel != "" {
		out["logLevel"] = c.LogLevel
	}
	if c.AssignedToLocation != nil {
		out["assignedToLocation"] = *c.AssignedToLocation
	}
	out["reboot"] = c.Reboot
	out["restart"] = c.Restart
	out["update"] = c.Update
	out["autoupdate"] = c.Autoupdate
	return json.Marshal(out)
}

func (c *LiveConfig) UnmarshalJSON(data []byte) error {
	var fresh LiveConfig
	if err := fresh.Merge(data); err != nil {
		return err
	}
	*c = fresh
	return nil
}

func (c LiveConfig) clone() LiveConfig {
	next := c
	if c.AssignedToLocation != nil {
		v := *c.AssignedToLocation
		next.AssignedToLocation = &v
	}
	if c.Extra != nil {
		next.Extra = make(map[string]json.RawMessage, len(c.Extra))
		for k, v := range c.Extra {
			next.Extra[k] = v
		}
	}
	return next
}
