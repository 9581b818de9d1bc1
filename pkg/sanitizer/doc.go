// Package sanitizer normalizes free-text input before validation. The booking
// core applies it to appointment notes and day-off reasons so that equality
// checks and stored values are stable regardless of how the text was typed.
package sanitizer
