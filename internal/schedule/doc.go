// Package schedule decides, for each submission and each check-in or
// check-out, which deferred work must happen and when, and hands it to the
// task queue.
//
// Time rules:
//   - Pre-registration mode holds while now is before the start-of-day of
//     the event's start date in the start zone.
//   - The reminder fires at start-of-day with the hour replaced by
//     sendHour (default 7), minus daysBefore days, and only if that is
//     still in the future.
//   - The thank-you fires three minutes from now (sendNow), N days from now
//     (sendNowAfterDays), or at end-of-day of the event's end date in the
//     end zone with the hour replaced by sendHour (default 7), plus
//     daysAfter days. Replacing the hour keeps the end-of-day minutes, so
//     the default fires at 07:59:59.999.
//
// Zones: an event's own timezone wins; otherwise the start and end zones
// come from configuration and are allowed to differ.
package schedule
