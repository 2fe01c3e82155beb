// Package domain holds the ad script task and user entities together with
// their validation and status transition rules. It has no knowledge of
// storage or HTTP.
package domain
