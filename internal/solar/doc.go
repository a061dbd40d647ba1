// Package solar computes sun events and the night percent used to blend
// day and night device presets.
//
// Night percent is 0 during full day and 1 during full night. Around each
// sun event an optional transition window, centred on the event (after the
// configured offset is applied), ramps the percent linearly. Before solar
// noon the sunrise settings apply; after it, the sunset settings.
//
// Everything here is a pure function of its inputs.
package solar
