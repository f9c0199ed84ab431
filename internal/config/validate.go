// Shopwire - Real-Time Messaging Core for Manufacturing Operations
// Copyright 2026 Shopwire Contributors
// SPDX-License-Identifier: Apache-2.0
// https://github.com/shopwire/shopwire

package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks struct tags plus the cross-field constraints the tags
// cannot express. Returns the first violation found.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		if errs, ok := err.(validator.ValidationErrors); ok && len(errs) > 0 {
			e := errs[0]
			return fmt.Errorf("invalid %s: failed %q constraint", e.Namespace(), e.Tag())
		}
		return err
	}

	if c.Client.BackoffCap < c.Client.BackoffBase {
		return fmt.Errorf("client.backoff_cap (%s) must be >= client.backoff_base (%s)",
			c.Client.BackoffCap, c.Client.BackoffBase)
	}

	if c.Client.ReorderCapacity > c.Client.Retention {
		return fmt.Errorf("client.reorder_capacity (%d) must not exceed client.retention (%d)",
			c.Client.ReorderCapacity, c.Client.Retention)
	}

	return nil
}
