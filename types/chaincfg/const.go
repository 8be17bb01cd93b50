// Copyright (c) 2024 The Embercoin developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chaincfg

const (
	// SparkPerEmber is the number of spark in one ember coin.  Spark is
	// the smallest indivisible unit of the currency.
	SparkPerEmber = 1e8

	// MaxCoinAmount is the maximum transaction amount allowed in spark.
	MaxCoinAmount = 21e6 * SparkPerEmber
)
