// Package dashboard is the Bubble Tea model for the live node view:
// scrolling sparklines per metric, the memory breakdown, and per-scheduler
// utilization when microstate accounting is on.
package dashboard
