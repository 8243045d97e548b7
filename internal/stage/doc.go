// Package stage names the asset pipeline stages and the Health record that
// stage collaborators report for status output.
package stage
