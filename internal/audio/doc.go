// Package audio holds the signal plumbing the biometric gate needs: PCM WAV
// framing, mono mix-down, resampling, gain normalisation and short-time
// spectra. It does not decode compressed codecs; uploads are expected as
// PCM WAV.
package audio
