// Package pool provides reusable byte buffers for outbound link data.
// Author: momentics <momentics@gmail.com>
package pool
