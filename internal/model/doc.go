// Package model owns the trained setpoint predictor and its
// lifecycle: training from the instance log, versioned persistence,
// atomic installation and prediction.
//
// A trained model freezes three things together: the ordered feature
// schema (derived time features plus the sorted sensor features seen
// in training), the per-feature training means used to impute missing
// values at prediction time, and the fitted regressor. Prediction
// against any installed model therefore keeps working even when a
// sensor has gone quiet or a new one has not yet reported.
//
// Models are installed with an atomic pointer swap, so the predict
// path never observes a half-trained model and never blocks on a
// training run.
package model
