// Package presence tracks which hosts (phones, laptops) are home.
//
// Hosts report "home" or "away" over MQTT on graylogic/presence/{host}.
// A host is unknown until its first report. The Detector answers the
// scene engine's host-home and anyone-home conditions and turns changes
// into scene triggers:
//
//   - host-arrival / host-departure when a known host changes state
//   - anybody-home / nobody-home when the household aggregate flips
//   - nobody-home-timeout once the house has stayed empty for
//     Options.NobodyHomeTimeout
//
// A host's first report only establishes its state. Retained MQTT reports
// replayed on reconnect therefore never fire arrival scenes.
package presence
